package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
)

var balanceAddress string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Query the triangles owned by an address",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&balanceAddress, "address", "d", "", "Address to query; defaults to the account's own address.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	address := balanceAddress
	if address == "" {
		kp, err := signature.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		address = kp.Address()
	}

	resp, err := http.Get(fmt.Sprintf("%s/v1/triangles/%s", nodeURL, address))
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
