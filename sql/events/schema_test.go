package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nostrsync/relay/sync2/negentropy"
)

func TestValidateSchema(t *testing.T) {
	id, pk := negentropy.RandomID(), negentropy.RandomID()
	valid := fmt.Sprintf(`{"id":"%s","pubkey":"%s","kind":1,"created_at":10,`+
		`"tags":[["e","abc"],["p","def"]],"content":"hello","sig":"00"}`, id, pk)
	require.NoError(t, ValidateSchema([]byte(valid)))

	for _, tc := range []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `[`},
		{name: "not an object", raw: `[1,2]`},
		{name: "missing sig", raw: fmt.Sprintf(
			`{"id":"%s","pubkey":"%s","kind":1,"created_at":10,"tags":[],"content":""}`, id, pk)},
		{name: "uppercase id", raw: fmt.Sprintf(
			`{"id":"%X","pubkey":"%s","kind":1,"created_at":10,"tags":[],"content":"","sig":""}`, id[:], pk)},
		{name: "fractional created_at", raw: fmt.Sprintf(
			`{"id":"%s","pubkey":"%s","kind":1,"created_at":1.5,"tags":[],"content":"","sig":""}`, id, pk)},
		{name: "kind out of range", raw: fmt.Sprintf(
			`{"id":"%s","pubkey":"%s","kind":70000,"created_at":1,"tags":[],"content":"","sig":""}`, id, pk)},
		{name: "bad tag", raw: fmt.Sprintf(
			`{"id":"%s","pubkey":"%s","kind":1,"created_at":1,"tags":[["e",1]],"content":"","sig":""}`, id, pk)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, ValidateSchema([]byte(tc.raw)))
		})
	}
}
