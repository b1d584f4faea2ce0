package gssapi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/types"
)

// RFC 4121 wrap token header flags.
const (
	flagSentByAcceptor byte = 0x01
	flagSealed         byte = 0x02
	flagAcceptorSubkey byte = 0x04
)

const wrapHeaderLen = gssapi.HdrLen

var wrapTokenID = [2]byte{0x05, 0x04}

var (
	errTokenDirection = errors.New("wrap token sent in the wrong direction")
	errTokenHeader    = errors.New("malformed wrap token header")
)

// tokenHeader is the parsed 16-byte wrap token header.
type tokenHeader struct {
	flags byte
	ec    uint16
	rrc   uint16
	seq   uint64
}

func (h tokenHeader) marshal() []byte {
	b := make([]byte, wrapHeaderLen)
	copy(b, wrapTokenID[:])
	b[2] = h.flags
	b[3] = gssapi.FillerByte
	binary.BigEndian.PutUint16(b[4:6], h.ec)
	binary.BigEndian.PutUint16(b[6:8], h.rrc)
	binary.BigEndian.PutUint64(b[8:16], h.seq)
	return b
}

func parseHeader(b []byte) (tokenHeader, error) {
	if len(b) < wrapHeaderLen {
		return tokenHeader{}, fmt.Errorf("%w: %d bytes", errTokenHeader, len(b))
	}
	if b[0] != wrapTokenID[0] || b[1] != wrapTokenID[1] {
		return tokenHeader{}, fmt.Errorf("%w: token ID %x", errTokenHeader, b[0:2])
	}
	if b[3] != gssapi.FillerByte {
		return tokenHeader{}, fmt.Errorf("%w: filler %#x", errTokenHeader, b[3])
	}
	return tokenHeader{
		flags: b[2],
		ec:    binary.BigEndian.Uint16(b[4:6]),
		rrc:   binary.BigEndian.Uint16(b[6:8]),
		seq:   binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// sealUsage is the key usage of wrap tokens emitted by one side.
func sealUsage(fromAcceptor bool) uint32 {
	if fromAcceptor {
		return keyusage.GSSAPI_ACCEPTOR_SEAL
	}
	return keyusage.GSSAPI_INITIATOR_SEAL
}

// wrapToken builds a wrap token. Sealed tokens encrypt
// payload | header-copy; others append a checksum over payload | header.
// Tokens are emitted with RRC 0 and EC 0 when sealed.
func wrapToken(key types.EncryptionKey, fromAcceptor, acceptorSubkey, seal bool, seq uint64, payload []byte) ([]byte, error) {
	var flags byte
	if fromAcceptor {
		flags |= flagSentByAcceptor
	}
	if acceptorSubkey {
		flags |= flagAcceptorSubkey
	}
	usage := sealUsage(fromAcceptor)

	if !seal {
		et, err := crypto.GetEtype(key.KeyType)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			payload = []byte{}
		}
		wt := gssapi.WrapToken{
			Flags:     flags,
			EC:        uint16(et.GetHMACBitLength() / 8),
			SndSeqNum: seq,
			Payload:   payload,
		}
		if err := wt.SetCheckSum(key, usage); err != nil {
			return nil, fmt.Errorf("compute wrap checksum: %w", err)
		}
		return wt.Marshal()
	}

	hdr := tokenHeader{flags: flags | flagSealed, seq: seq}.marshal()
	plain := make([]byte, 0, len(payload)+wrapHeaderLen)
	plain = append(plain, payload...)
	plain = append(plain, hdr...)

	et, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return nil, err
	}
	_, ct, err := et.EncryptMessage(key.KeyValue, plain, usage)
	if err != nil {
		return nil, fmt.Errorf("seal wrap token: %w", err)
	}
	return append(hdr, ct...), nil
}

// unwrapToken verifies a wrap token emitted by the peer and returns its
// payload, header and whether it was sealed.
func unwrapToken(key types.EncryptionKey, fromAcceptor bool, token []byte) ([]byte, tokenHeader, error) {
	hdr, err := parseHeader(token)
	if err != nil {
		return nil, hdr, err
	}
	if (hdr.flags&flagSentByAcceptor != 0) != fromAcceptor {
		return nil, hdr, errTokenDirection
	}
	usage := sealUsage(fromAcceptor)

	body := rotateLeft(token[wrapHeaderLen:], int(hdr.rrc))

	if hdr.flags&flagSealed == 0 {
		// The checksum covers the header with EC and RRC zeroed, so the
		// token is re-assembled without rotation for verification.
		normalized := tokenHeader{flags: hdr.flags, ec: hdr.ec, seq: hdr.seq}.marshal()
		var wt gssapi.WrapToken
		if err := wt.Unmarshal(append(normalized, body...), fromAcceptor); err != nil {
			return nil, hdr, fmt.Errorf("%w: %v", errTokenHeader, err)
		}
		if ok, err := wt.Verify(key, usage); !ok {
			return nil, hdr, fmt.Errorf("wrap token checksum: %w", err)
		}
		return wt.Payload, hdr, nil
	}

	plain, err := crypto.DecryptMessage(body, key, usage)
	if err != nil {
		return nil, hdr, fmt.Errorf("unseal wrap token: %w", err)
	}
	if len(plain) < int(hdr.ec)+wrapHeaderLen {
		return nil, hdr, fmt.Errorf("%w: sealed payload too short", errTokenHeader)
	}

	trailer := plain[len(plain)-wrapHeaderLen:]
	expected := tokenHeader{flags: hdr.flags, ec: hdr.ec, seq: hdr.seq}.marshal()
	if !bytes.Equal(trailer, expected) {
		return nil, hdr, fmt.Errorf("%w: encrypted header does not match", errTokenHeader)
	}
	return plain[:len(plain)-wrapHeaderLen-int(hdr.ec)], hdr, nil
}

// rotateLeft undoes a right rotation by n bytes.
func rotateLeft(b []byte, n int) []byte {
	if len(b) == 0 {
		return b
	}
	n %= len(b)
	if n == 0 {
		return b
	}
	out := make([]byte, 0, len(b))
	out = append(out, b[n:]...)
	return append(out, b[:n]...)
}

// wrapOverhead is the number of bytes wrapToken adds to a payload.
func wrapOverhead(key types.EncryptionKey, seal bool) (int, error) {
	et, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return 0, err
	}
	mac := et.GetHMACBitLength() / 8
	if !seal {
		return wrapHeaderLen + mac, nil
	}
	return wrapHeaderLen + et.GetConfounderByteSize() + wrapHeaderLen + mac, nil
}
