package netease

import (
	"bytes"
	"crypto/aes"
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const (
	eapiKey       = "e82ckenh8dichen8"
	eapiSeparator = "-36cd479b6b5-"
)

// eapiParams builds the encrypted "params" form value of an eapi call.
//
// The plaintext is "<path>-36cd479b6b5-<payload>-36cd479b6b5-<digest>" where
// path is the /api/ form of the endpoint and digest is the hex MD5 of
// "nobody<path>use<payload>md5forencrypt". It is PKCS#7 padded, encrypted
// with AES-128 in ECB mode and hex encoded.
//
// Example:
//
//	params := eapiParams("/api/song/enhance/player/url/v1", payload)
//	form := url.Values{"params": {params}}
func eapiParams(path string, payload []byte) string {
	sum := md5.Sum([]byte("nobody" + path + "use" + string(payload) + "md5forencrypt"))
	plain := path + eapiSeparator + string(payload) + eapiSeparator + hex.EncodeToString(sum[:])
	return hex.EncodeToString(encryptECB([]byte(plain)))
}

// apiPath maps an /eapi/ endpoint to the /api/ path that is signed.
func apiPath(eapiPath string) string {
	return strings.Replace(eapiPath, "/eapi/", "/api/", 1)
}

func encryptECB(plain []byte) []byte {
	block, err := aes.NewCipher([]byte(eapiKey))
	if err != nil {
		panic(err) // fixed 16 byte key
	}
	size := block.BlockSize()

	pad := size - len(plain)%size
	data := append(plain, bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += size {
		block.Encrypt(out[i:i+size], data[i:i+size])
	}
	return out
}
