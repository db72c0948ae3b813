package pal

// Vendor security message event codes.
const (
	SecPairInd           = 0x01 // incoming pairing request
	SecSlaveReqInd       = 0x02 // slave security request
	SecPairCmplInd       = 0x03 // pairing complete
	SecPairFailInd       = 0x04 // pairing failed, reason in status
	SecEncryptInd        = 0x05 // encryption changed
	SecEncryptFailInd    = 0x06 // encryption attempt failed
	SecEncryptTimeoutInd = 0x07 // encryption request timed out
	SecAuthReqInd        = 0x08 // user authentication data needed
	SecKeyInd            = 0x09 // key material distributed
	SecLtkReqInd         = 0x0A // peer asks for an LTK
	SecCalcOobInd        = 0x0B // local OOB material generated
	SecCompareInd        = 0x0C // numeric comparison requested
	SecKeypressInd       = 0x0D // peer keypress notification
	SecOobReqInd         = 0x0E // secure connections OOB data needed
	SecSignedWriteInd    = 0x0F // peer signed write verified by the stack
	SecSignedFailInd     = 0x10 // peer signed write failed verification
)

// Key types carried in a SecKeyInd payload.
const (
	KeyTypeLocalLtk = 0x01
	KeyTypePeerLtk  = 0x02
	KeyTypeIrk      = 0x03
	KeyTypeCsrk     = 0x04
)

// Security levels carried in a SecEncryptInd payload.
const (
	SecLevelNone    = 0x00
	SecLevelEnc     = 0x01
	SecLevelEncAuth = 0x02
	SecLevelEncLesc = 0x03
)

// Status codes outside the Core pairing failure range.
const (
	StatusTimeout = 0xE0 // exchange timer expired
	StatusMemory  = 0xE1 // stack ran out of resources
)
