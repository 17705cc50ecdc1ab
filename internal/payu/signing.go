// Package payu implements the PayU hosted-checkout protocol: request signing,
// callback verification and payload assembly.
package payu

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Params are gateway form fields keyed by their wire names.
type Params map[string]string

// Get returns the named field, or "" when absent.
func (p Params) Get(name string) string {
	if p == nil {
		return ""
	}
	return p[name]
}

const (
	FieldKey             = "key"
	FieldTxnID           = "txnid"
	FieldAmount          = "amount"
	FieldProductInfo     = "productinfo"
	FieldFirstName       = "firstname"
	FieldLastName        = "lastname"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldAddress1        = "address1"
	FieldAddress2        = "address2"
	FieldCity            = "city"
	FieldState           = "state"
	FieldCountry         = "country"
	FieldZipcode         = "zipcode"
	FieldSuccessURL      = "surl"
	FieldFailureURL      = "furl"
	FieldCancelURL       = "curl"
	FieldServiceProvider = "service_provider"
	FieldUDF1            = "udf1"
	FieldUDF2            = "udf2"
	FieldUDF3            = "udf3"
	FieldUDF4            = "udf4"
	FieldUDF5            = "udf5"
	FieldStatus          = "status"
	FieldHash            = "hash"
)

// Slot markers that are not form fields.
const (
	slotReserved = "\x00reserved"
	slotSalt     = "\x00salt"
)

// The gateway reserves udf6..udf10 in both layouts; they are always empty and
// render as a run of six pipes.
var reservedSlots = []string{slotReserved, slotReserved, slotReserved, slotReserved, slotReserved}

// outboundSequence is key|txnid|amount|productinfo|firstname|email|udf1..udf5||||||SALT.
var outboundSequence = concat(
	[]string{
		FieldKey, FieldTxnID, FieldAmount, FieldProductInfo, FieldFirstName, FieldEmail,
		FieldUDF1, FieldUDF2, FieldUDF3, FieldUDF4, FieldUDF5,
	},
	reservedSlots,
	[]string{slotSalt},
)

// inboundSequence is SALT|status||||||udf5..udf1|email|firstname|productinfo|amount|txnid|key.
var inboundSequence = concat(
	[]string{slotSalt, FieldStatus},
	reservedSlots,
	[]string{
		FieldUDF5, FieldUDF4, FieldUDF3, FieldUDF2, FieldUDF1,
		FieldEmail, FieldFirstName, FieldProductInfo, FieldAmount, FieldTxnID, FieldKey,
	},
)

// OutboundHashString renders the request signing string.
func OutboundHashString(params Params, salt string) string {
	return render(outboundSequence, params, salt)
}

// InboundHashString renders the callback verification string.
func InboundHashString(params Params, salt string) string {
	return render(inboundSequence, params, salt)
}

// OutboundSignature is the hex SHA-512 digest sent as the request's hash field.
func OutboundSignature(params Params, salt string) string {
	return digest(OutboundHashString(params, salt))
}

// InboundSignature is the digest the gateway is expected to put on a callback.
func InboundSignature(params Params, salt string) string {
	return digest(InboundHashString(params, salt))
}

// VerifyInboundSignature checks the callback's hash field in constant time.
// Missing fields, including the hash itself, simply fail the comparison.
func VerifyInboundSignature(params Params, salt string) bool {
	supplied := strings.ToLower(strings.TrimSpace(params.Get(FieldHash)))
	expected := InboundSignature(params, salt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

func render(sequence []string, params Params, salt string) string {
	values := make([]string, len(sequence))
	for i, slot := range sequence {
		switch slot {
		case slotReserved:
			values[i] = ""
		case slotSalt:
			values[i] = salt
		default:
			values[i] = params.Get(slot)
		}
	}
	return strings.Join(values, "|")
}

func digest(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
