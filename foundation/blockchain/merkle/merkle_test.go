package merkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/trinitychain/trinitychain/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// leaf is a minimal Hashable for exercising the tree.
type leaf string

func (l leaf) MerkleHash() ([]byte, error) {
	h := sha256.Sum256([]byte(l))
	return h[:], nil
}

func (l leaf) Equals(other leaf) bool {
	return l == other
}

func combine(a, b [32]byte) [32]byte {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func TestTree(t *testing.T) {
	t.Log("Given the need to compute merkle roots over transactions.")
	{
		t.Logf("\tTest 0:\tWhen handling an empty set.")
		{
			tree, err := merkle.NewTree([]leaf{})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould build a tree: %v", failed, err)
			}
			if tree.Root() != [32]byte{} {
				t.Fatalf("\t%s\tTest 0:\tShould yield the zero root.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould yield the zero root.", success)
		}

		t.Logf("\tTest 1:\tWhen handling a single leaf.")
		{
			tree, err := merkle.NewTree([]leaf{"a"})
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould build a tree: %v", failed, err)
			}
			exp := sha256.Sum256([]byte("a"))
			if tree.Root() != exp {
				t.Fatalf("\t%s\tTest 1:\tShould equal the leaf hash itself.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould equal the leaf hash itself.", success)
		}

		t.Logf("\tTest 2:\tWhen handling an odd number of leaves.")
		{
			tree, err := merkle.NewTree([]leaf{"a", "b", "c"})
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould build a tree: %v", failed, err)
			}

			ha := sha256.Sum256([]byte("a"))
			hb := sha256.Sum256([]byte("b"))
			hc := sha256.Sum256([]byte("c"))
			exp := combine(combine(ha, hb), combine(hc, hc))

			if tree.Root() != exp {
				t.Fatalf("\t%s\tTest 2:\tShould duplicate the last leaf when pairing.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould duplicate the last leaf when pairing.", success)
		}

		t.Logf("\tTest 3:\tWhen checking membership.")
		{
			tree, err := merkle.NewTree([]leaf{"a", "b"})
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould build a tree: %v", failed, err)
			}
			if !tree.Contains("a") || tree.Contains("z") {
				t.Fatalf("\t%s\tTest 3:\tShould report membership correctly.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould report membership correctly.", success)
		}
	}
}
