package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

var (
	subParent string
	subFee    uint64
	subNonce  uint64
)

// subdivideCmd signs and submits a Sierpinski subdivision of one owned
// triangle. The children are derived locally from the node's view of the
// parent so the midpoints match what validation expects.
var subdivideCmd = &cobra.Command{
	Use:   "subdivide",
	Short: "Split a triangle into its three corner children",
	Run:   subdivideRun,
}

func init() {
	rootCmd.AddCommand(subdivideCmd)
	subdivideCmd.Flags().StringVarP(&subParent, "parent", "i", "", "Output id of the triangle to subdivide.")
	subdivideCmd.Flags().Uint64VarP(&subFee, "fee", "f", 0, "Fee offered to the miner.")
	subdivideCmd.Flags().Uint64VarP(&subNonce, "nonce", "n", 0, "Nonce for the transaction.")
}

func subdivideRun(cmd *cobra.Command, args []string) {
	kp, err := signature.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	parentHash, err := transaction.ParseHash(subParent)
	if err != nil {
		log.Fatal(err)
	}

	parent := fetchTriangle(kp.Address(), subParent)
	children := parent.Subdivide()

	sub := transaction.SubdivisionTx{
		ParentHash: parentHash,
		Children:   children[:],
		Owner:      kp.Address(),
		Fee:        subFee,
		Nonce:      subNonce,
	}
	if err := sub.Sign(kp); err != nil {
		log.Fatal(err)
	}

	submit(transaction.NewSubdivision(sub))
}

// fetchTriangle pulls the owned triangle with the given output id from the
// node.
func fetchTriangle(address string, outputID string) geometry.Triangle {
	resp, err := http.Get(fmt.Sprintf("%s/v1/triangles/%s", nodeURL, address))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	var owned []struct {
		OutputID string            `json:"output_id"`
		Triangle geometry.Triangle `json:"triangle"`
	}
	if err := json.Unmarshal(body, &owned); err != nil {
		log.Fatal(err)
	}

	for _, o := range owned {
		if o.OutputID == outputID {
			return o.Triangle
		}
	}

	log.Fatalf("output %s not owned by %s", outputID, address)
	return geometry.Triangle{}
}
