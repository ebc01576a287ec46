package queue

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewJobID generates a job_id of the form "job_" + 12 random hex characters.
func NewJobID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("queue: failed to read random bytes: %v", err))
	}
	return "job_" + hex.EncodeToString(buf)
}
