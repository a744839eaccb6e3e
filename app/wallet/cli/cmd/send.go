package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

var (
	sendInput string
	sendTo    string
	sendFee   float64
	sendNonce uint64
	sendMemo  string
)

// sendCmd signs and submits a transfer of one triangle output.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a triangle to a new owner",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendInput, "input", "i", "", "Output id of the triangle to send.")
	sendCmd.Flags().StringVarP(&sendTo, "to", "t", "", "Address of the new owner.")
	sendCmd.Flags().Float64VarP(&sendFee, "fee", "f", 0, "Fee area offered to the miner.")
	sendCmd.Flags().Uint64VarP(&sendNonce, "nonce", "n", 0, "Nonce for the transaction.")
	sendCmd.Flags().StringVarP(&sendMemo, "memo", "m", "", "Optional memo, up to 256 bytes.")
}

func sendRun(cmd *cobra.Command, args []string) {
	kp, err := signature.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	inputHash, err := transaction.ParseHash(sendInput)
	if err != nil {
		log.Fatal(err)
	}

	tr := transaction.TransferTx{
		InputHash: inputHash,
		NewOwner:  sendTo,
		Sender:    kp.Address(),
		FeeArea:   sendFee,
		Nonce:     sendNonce,
		Memo:      sendMemo,
	}
	if err := tr.Sign(kp); err != nil {
		log.Fatal(err)
	}

	submit(transaction.NewTransfer(tr))
}

// submit posts a signed transaction to the node.
func submit(tx transaction.Tx) {
	data, err := json.Marshal(tx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", nodeURL), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(body))
}
