package ldap

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	ber "github.com/go-asn1-ber/asn1-ber"
	ldapv3 "github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Extended operation OIDs.
const (
	OIDStartTLS              = "1.3.6.1.4.1.1466.20037"
	OIDWhoAmI                = ldapv3.ControlTypeWhoAmI
	OIDNoticeOfDisconnection = "1.3.6.1.4.1.1466.20036"
)

// LDAP protocol version accepted in a BindRequest.
const protocolVersion3 = 3

// Context tags inside BindRequest, BindResponse and extended operations.
const (
	tagAuthSimple           ber.Tag = 0
	tagAuthSASL             ber.Tag = 3
	tagServerSASLCreds      ber.Tag = 7
	tagExtendedRequestName  ber.Tag = 0
	tagExtendedRequestValue ber.Tag = 1
	tagExtendedResponseName ber.Tag = 10
	tagExtendedResponseVal  ber.Tag = 11
)

const berSequence = 0x30

var (
	errMessageTooLarge = errors.New("ldap: message exceeds maximum size")
	errMalformed       = errors.New("ldap: malformed message")
)

// message is one decoded LDAPMessage.
type message struct {
	id int64
	op *ber.Packet
}

// readMessage reads one LDAPMessage. The length is checked against maxSize
// before the body is read so an oversized message never gets buffered.
// io.EOF is returned only when the stream ends on a message boundary.
func readMessage(r *bufio.Reader, maxSize int) (*message, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if tag != berSequence {
		return nil, fmt.Errorf("%w: unexpected tag 0x%02x", errMalformed, tag)
	}

	first, err := r.ReadByte()
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	header := []byte{tag, first}

	var length int
	switch {
	case first < 0x80:
		length = int(first)
	case first == 0x80:
		return nil, fmt.Errorf("%w: indefinite length", errMalformed)
	default:
		n := int(first & 0x7f)
		if n > 4 {
			return nil, errMessageTooLarge
		}
		for i := 0; i < n; i++ {
			b, err := r.ReadByte()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			header = append(header, b)
			length = length<<8 | int(b)
		}
	}
	if maxSize > 0 && length > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", errMessageTooLarge, length)
	}

	buf := make([]byte, len(header)+length)
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[len(header):]); err != nil {
		return nil, unexpectedEOF(err)
	}

	p, err := ber.DecodePacketErr(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return parseMessage(p)
}

func parseMessage(p *ber.Packet) (*message, error) {
	if len(p.Children) < 2 {
		return nil, fmt.Errorf("%w: LDAPMessage has %d elements", errMalformed, len(p.Children))
	}
	id, ok := p.Children[0].Value.(int64)
	if !ok || p.Children[0].Tag != ber.TagInteger {
		return nil, fmt.Errorf("%w: missing message ID", errMalformed)
	}
	op := p.Children[1]
	if op.ClassType != ber.ClassApplication {
		return nil, fmt.Errorf("%w: protocolOp is not an application element", errMalformed)
	}
	return &message{id: id, op: op}, nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// bindRequest is a decoded BindRequest. For a simple bind mechanism is
// auth.MechanismSimple and credentials holds the password.
type bindRequest struct {
	version     int64
	name        string
	mechanism   string
	credentials []byte
}

func (b *bindRequest) isSimple() bool {
	return b.mechanism == auth.MechanismSimple
}

func parseBindRequest(op *ber.Packet) (*bindRequest, error) {
	if len(op.Children) < 3 {
		return nil, fmt.Errorf("%w: BindRequest has %d elements", errMalformed, len(op.Children))
	}
	version, ok := op.Children[0].Value.(int64)
	if !ok {
		return nil, fmt.Errorf("%w: BindRequest version", errMalformed)
	}
	req := &bindRequest{version: version, name: octetString(op.Children[1])}

	choice := op.Children[2]
	if choice.ClassType != ber.ClassContext {
		return nil, fmt.Errorf("%w: authentication choice", errMalformed)
	}
	switch choice.Tag {
	case tagAuthSimple:
		req.mechanism = auth.MechanismSimple
		req.credentials = contentBytes(choice)
	case tagAuthSASL:
		if len(choice.Children) < 1 {
			return nil, fmt.Errorf("%w: SaslCredentials without mechanism", errMalformed)
		}
		req.mechanism = octetString(choice.Children[0])
		if len(choice.Children) > 1 {
			req.credentials = contentBytes(choice.Children[1])
			if req.credentials == nil {
				req.credentials = []byte{}
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported authentication choice [%d]", errMalformed, choice.Tag)
	}
	return req, nil
}

// extendedRequest is a decoded ExtendedRequest.
type extendedRequest struct {
	name  string
	value []byte
}

func parseExtendedRequest(op *ber.Packet) (*extendedRequest, error) {
	req := &extendedRequest{}
	for _, child := range op.Children {
		if child.ClassType != ber.ClassContext {
			continue
		}
		switch child.Tag {
		case tagExtendedRequestName:
			req.name = string(contentBytes(child))
		case tagExtendedRequestValue:
			req.value = contentBytes(child)
		}
	}
	if req.name == "" {
		return nil, fmt.Errorf("%w: ExtendedRequest without requestName", errMalformed)
	}
	return req, nil
}

// contentBytes returns the raw content of a primitive element. go-asn1-ber
// only fills ByteValue for universal elements.
func contentBytes(p *ber.Packet) []byte {
	if p.ByteValue != nil {
		return p.ByteValue
	}
	if p.Data == nil {
		return nil
	}
	return append([]byte(nil), p.Data.Bytes()...)
}

func octetString(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}
	return string(contentBytes(p))
}

// encodeMessage wraps op in an LDAPMessage envelope.
func encodeMessage(id int64, op *ber.Packet) []byte {
	p := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAP Response")
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, id, "MessageID"))
	p.AppendChild(op)
	return p.Bytes()
}

// resultOp builds an LDAPResult-shaped response with application tag app.
func resultOp(app ber.Tag, code auth.ResultCode, diagnostic string) *ber.Packet {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, app, nil, ldapv3.ApplicationMap[uint8(app)])
	op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, uint16(code), "resultCode"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "matchedDN"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, diagnostic, "diagnosticMessage"))
	return op
}

func encodeBindResponse(id int64, code auth.ResultCode, diagnostic string, serverCreds []byte) []byte {
	op := resultOp(ldapv3.ApplicationBindResponse, code, diagnostic)
	if serverCreds != nil {
		op.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, tagServerSASLCreds, string(serverCreds), "serverSaslCreds"))
	}
	return encodeMessage(id, op)
}

func encodeExtendedResponse(id int64, code auth.ResultCode, diagnostic, name string, value []byte) []byte {
	op := resultOp(ldapv3.ApplicationExtendedResponse, code, diagnostic)
	if name != "" {
		op.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, tagExtendedResponseName, name, "responseName"))
	}
	if value != nil {
		op.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, tagExtendedResponseVal, string(value), "responseValue"))
	}
	return encodeMessage(id, op)
}

// encodeNoticeOfDisconnection is the unsolicited notification sent before
// the server drops a connection.
func encodeNoticeOfDisconnection(code auth.ResultCode, diagnostic string) []byte {
	return encodeExtendedResponse(0, code, diagnostic, OIDNoticeOfDisconnection, nil)
}

// responseTag returns the response application tag for a request that is
// rejected without processing, and false for requests that get no response.
func responseTag(request ber.Tag) (ber.Tag, bool) {
	switch request {
	case ldapv3.ApplicationUnbindRequest, ldapv3.ApplicationAbandonRequest:
		return 0, false
	case ldapv3.ApplicationSearchRequest:
		return ldapv3.ApplicationSearchResultDone, true
	case ldapv3.ApplicationExtendedRequest:
		return ldapv3.ApplicationExtendedResponse, true
	case ldapv3.ApplicationModifyRequest, ldapv3.ApplicationAddRequest, ldapv3.ApplicationDelRequest,
		ldapv3.ApplicationModifyDNRequest, ldapv3.ApplicationCompareRequest, ldapv3.ApplicationBindRequest:
		return request + 1, true
	default:
		return 0, false
	}
}
