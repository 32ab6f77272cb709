// Package id generates identifiers for editing sessions.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// Generate returns prefix followed by an underscore and 12 random hex
// characters, e.g. "ses_3f9a0c12b7de".
func Generate(prefix string) string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return prefix + "_" + strconv.FormatInt(time.Now().UnixNano()&0xffffffffffff, 16)
	}
	return prefix + "_" + hex.EncodeToString(b)
}

// Session returns a session identifier tagged with the owning process, so
// log lines can be matched to its snapshot files.
func Session(pid int) string {
	return Generate("ses") + "-" + strconv.Itoa(pid)
}
