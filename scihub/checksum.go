package scihub

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// MD5File hashes the file at path, returning lowercase hex.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MD5Compare reports whether the file at path hashes to sum. The catalog
// publishes uppercase digests, so the comparison ignores case.
func MD5Compare(path, sum string) (bool, error) {
	got, err := MD5File(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(got, sum), nil
}
