package repoindex

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/divvun/pahkat/pkg/model"
)

// HashID computes the cache-directory name for a repository record: the
// lowercase hex SHA-256 of "<url>#<channel>" (spec §4.2 step 1).
func HashID(rec model.RepoRecord) string {
	sum := sha256.Sum256([]byte(string(rec.URL) + "#" + rec.Channel))
	return hex.EncodeToString(sum[:])
}
