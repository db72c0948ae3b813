package smpcrypto

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// signatureLen is the truncated AES-CMAC carried by a signed write.
const signatureLen = 8

// SignData builds a signed write PDU: message || signCounter || signature,
// with the signature computed over message and counter using the CSRK.
func SignData(csrk, message []byte, signCounter uint32) ([]byte, error) {
	if len(csrk) != 16 {
		return nil, fmt.Errorf("length error")
	}

	pdu := make([]byte, 0, len(message)+4+signatureLen)
	pdu = append(pdu, message...)

	counter := make([]byte, 4)
	binary.LittleEndian.PutUint32(counter, signCounter)
	pdu = append(pdu, counter...)

	mac, err := AesCMAC(csrk, pdu)
	if err != nil {
		return nil, err
	}

	return append(pdu, mac[:signatureLen]...), nil
}

// VerifySignature checks the trailing signature of a signed write PDU
// against the CSRK and returns the sign counter the PDU carries. The
// counter is only meaningful when the signature verified.
func VerifySignature(csrk, pdu []byte) (uint32, error) {
	if len(csrk) != 16 {
		return 0, fmt.Errorf("length error")
	}
	if len(pdu) < 4+signatureLen {
		return 0, fmt.Errorf("short signed pdu %d", len(pdu))
	}

	body := pdu[:len(pdu)-signatureLen]
	mac, err := AesCMAC(csrk, body)
	if err != nil {
		return 0, err
	}

	if subtle.ConstantTimeCompare(mac[:signatureLen], pdu[len(pdu)-signatureLen:]) != 1 {
		return 0, fmt.Errorf("signature mismatch")
	}

	return binary.LittleEndian.Uint32(body[len(body)-4:]), nil
}
