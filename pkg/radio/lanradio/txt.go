package lanradio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/google/uuid"
)

// TXT record keys.
const (
	TXTKeyManufacturer = "M"
	TXTKeyData         = "D"
	TXTKeyService      = "S"
	TXTKeyPower        = "P"
)

var (
	errMissingKey = errors.New("lanradio: missing txt key")
	errBadValue   = errors.New("lanradio: bad txt value")
)

// EncodeTXT renders ad as TXT records.
func EncodeTXT(ad radio.Advertisement) []string {
	txt := []string{
		fmt.Sprintf("%s=%04X", TXTKeyManufacturer, ad.ManufacturerID),
		TXTKeyData + "=" + hex.EncodeToString(ad.Data),
		TXTKeyPower + "=" + ad.TxPower.String(),
	}
	if ad.ServiceUUID != uuid.Nil {
		txt = append(txt, TXTKeyService+"="+ad.ServiceUUID.String())
	}
	return txt
}

// DecodeTXT parses TXT records produced by EncodeTXT. Unknown keys are
// ignored; a missing power key means TxPowerHigh.
func DecodeTXT(txt []string) (radio.Advertisement, error) {
	kv := make(map[string]string, len(txt))
	for _, rec := range txt {
		k, v, _ := strings.Cut(rec, "=")
		kv[k] = v
	}

	var ad radio.Advertisement

	m, ok := kv[TXTKeyManufacturer]
	if !ok {
		return ad, fmt.Errorf("%w: %s", errMissingKey, TXTKeyManufacturer)
	}
	id, err := strconv.ParseUint(m, 16, 16)
	if err != nil {
		return ad, fmt.Errorf("%w: %s=%q", errBadValue, TXTKeyManufacturer, m)
	}
	ad.ManufacturerID = uint16(id)

	d, ok := kv[TXTKeyData]
	if !ok {
		return ad, fmt.Errorf("%w: %s", errMissingKey, TXTKeyData)
	}
	if ad.Data, err = hex.DecodeString(d); err != nil {
		return ad, fmt.Errorf("%w: %s=%q", errBadValue, TXTKeyData, d)
	}

	ad.TxPower = radio.TxPowerHigh
	if p, ok := kv[TXTKeyPower]; ok {
		if ad.TxPower, ok = radio.ParseTxPower(p); !ok {
			return ad, fmt.Errorf("%w: %s=%q", errBadValue, TXTKeyPower, p)
		}
	}

	if s, ok := kv[TXTKeyService]; ok {
		if ad.ServiceUUID, err = uuid.Parse(s); err != nil {
			return ad, fmt.Errorf("%w: %s=%q", errBadValue, TXTKeyService, s)
		}
	}
	return ad, nil
}
