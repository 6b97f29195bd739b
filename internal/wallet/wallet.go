// Package wallet abstracts the external signing capability. The wallet holds
// the keys; this process only asks it to sign and broadcast.
package wallet

import (
	"context"
	"encoding/json"
)

// Capability is the wallet boundary the swap orchestrator depends on.
type Capability interface {
	Connected() bool
	Address() string
	// SignAndExecute signs the unsigned transaction and broadcasts it,
	// returning the transaction digest. It fails when the user declines,
	// the signer errors or the broadcast is rejected.
	SignAndExecute(ctx context.Context, tx json.RawMessage) (string, error)
}
