package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" over "<unix>.<body>".
const SignatureHeader = "X-SubAdmin-Signature"

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string, now time.Time) string {
	ts := now.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeHMAC(ts, payload, secret))
}

// Verify checks header against payload and rejects signatures older than
// tolerance. A zero tolerance disables the age check.
func Verify(payload []byte, header, secret string, now time.Time, tolerance time.Duration) bool {
	var tsText, v1 string
	for _, segment := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "t":
			tsText = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	ts, err := strconv.ParseInt(tsText, 10, 64)
	if err != nil || v1 == "" {
		return false
	}
	if tolerance > 0 && now.Sub(time.Unix(ts, 0)) > tolerance {
		return false
	}
	return hmac.Equal([]byte(v1), []byte(computeHMAC(ts, payload, secret)))
}

func computeHMAC(ts int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
