package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	wire "github.com/DoyleJ11/facecap/pkg/types"
)

var ErrMalformed = errors.New("malformed message")

// ClientMessage is anything the client writes to the server.
type ClientMessage interface {
	Tag() wire.Tag
}

type Probe struct{}

type Frame struct {
	DataURL  string `json:"dataURL"`
	Identity int    `json:"identity"`
	ID       int64  `json:"ID"`
}

type AllState wire.StateSnapshot

type AddPerson struct {
	Val string `json:"val"`
}

type Training struct {
	Val bool `json:"val"`
}

type ReqTSNE struct {
	People []string `json:"people"`
}

type UpdateIdentity struct {
	Hash string `json:"hash"`
	Idx  int    `json:"idx"`
}

type RemoveImage struct {
	Hash string `json:"hash"`
}

type Info struct {
	Name    string `json:"name"`
	Mail    string `json:"mail"`
	Mobile  string `json:"mobile"`
	Company string `json:"company"`
}

// StoppedAck echoes only the identifying fields the server supplied.
type StoppedAck struct {
	Name string `json:"name,omitempty"`
	Mail string `json:"mail,omitempty"`
}

type RegisterClick struct {
	Val string `json:"val"`
}

func (Probe) Tag() wire.Tag          { return wire.TagNull }
func (Frame) Tag() wire.Tag          { return wire.TagFrame }
func (AllState) Tag() wire.Tag       { return wire.TagAllState }
func (AddPerson) Tag() wire.Tag      { return wire.TagAddPerson }
func (Training) Tag() wire.Tag       { return wire.TagTraining }
func (ReqTSNE) Tag() wire.Tag        { return wire.TagReqTSNE }
func (UpdateIdentity) Tag() wire.Tag { return wire.TagUpdateIdentity }
func (RemoveImage) Tag() wire.Tag    { return wire.TagRemoveImage }
func (Info) Tag() wire.Tag           { return wire.TagInfo }
func (StoppedAck) Tag() wire.Tag     { return wire.TagStoppedAck }
func (RegisterClick) Tag() wire.Tag  { return wire.TagRegisterClick }

// Encode marshals m and splices the "type" field in front of its fields.
func Encode(m ClientMessage) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
	}
	tag, _ := json.Marshal(string(m.Tag()))

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 { // not "{}"
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// ServerMessage is one decoded inbound message. The set of variants is
// closed; tags this client does not know decode to Unrecognized.
type ServerMessage interface {
	Tag() wire.Tag
	isServerMessage()
}

type Echo struct{}

type Processed struct{}

type Warning struct {
	Message string `json:"message"`
}

type StoredID struct {
	ID CaptureID `json:"id"`
}

type EndFaceCollection struct {
	Name string `json:"name"`
	Mail string `json:"mail"`
}

type NewImage struct {
	Hash           string    `json:"hash"`
	Identity       int       `json:"identity"`
	Content        []int     `json:"content"`
	Representation []float64 `json:"representation"`
}

type Identities struct {
	Identities []int `json:"identities"`
}

type Annotated struct {
	Content string `json:"content"`
}

type TSNEData struct {
	Content string `json:"content"`
}

// Unrecognized carries a tag this client has no handler for.
type Unrecognized struct {
	Type wire.Tag
	Raw  json.RawMessage
}

func (Echo) Tag() wire.Tag              { return wire.TagNull }
func (Processed) Tag() wire.Tag         { return wire.TagProcessed }
func (Warning) Tag() wire.Tag           { return wire.TagWarning }
func (StoredID) Tag() wire.Tag          { return wire.TagStoredPage2 }
func (EndFaceCollection) Tag() wire.Tag { return wire.TagEndFaceCollection }
func (NewImage) Tag() wire.Tag          { return wire.TagNewImage }
func (Identities) Tag() wire.Tag        { return wire.TagIdentities }
func (Annotated) Tag() wire.Tag         { return wire.TagAnnotated }
func (TSNEData) Tag() wire.Tag          { return wire.TagTSNEData }
func (u Unrecognized) Tag() wire.Tag    { return u.Type }

func (Echo) isServerMessage()              {}
func (Processed) isServerMessage()         {}
func (Warning) isServerMessage()           {}
func (StoredID) isServerMessage()          {}
func (EndFaceCollection) isServerMessage() {}
func (NewImage) isServerMessage()          {}
func (Identities) isServerMessage()        {}
func (Annotated) isServerMessage()         {}
func (TSNEData) isServerMessage()          {}
func (Unrecognized) isServerMessage()      {}

// Decode parses one inbound frame. A frame without a string "type" field
// is ErrMalformed; an unknown type is returned as Unrecognized.
func Decode(data []byte) (ServerMessage, error) {
	var env struct {
		Type *wire.Tag `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var msg ServerMessage
	switch *env.Type {
	case wire.TagNull:
		return Echo{}, nil
	case wire.TagProcessed:
		return Processed{}, nil
	case wire.TagWarning:
		msg = &Warning{}
	case wire.TagStoredPage2:
		msg = &StoredID{}
	case wire.TagEndFaceCollection:
		msg = &EndFaceCollection{}
	case wire.TagNewImage:
		msg = &NewImage{}
	case wire.TagIdentities:
		msg = &Identities{}
	case wire.TagAnnotated:
		msg = &Annotated{}
	case wire.TagTSNEData:
		msg = &TSNEData{}
	default:
		return Unrecognized{Type: *env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, *env.Type, err)
	}
	return deref(msg), nil
}

func deref(m ServerMessage) ServerMessage {
	switch v := m.(type) {
	case *Warning:
		return *v
	case *StoredID:
		return *v
	case *EndFaceCollection:
		return *v
	case *NewImage:
		return *v
	case *Identities:
		return *v
	case *Annotated:
		return *v
	case *TSNEData:
		return *v
	}
	return m
}

// CaptureID is the server-assigned id for a stored capture. The server
// writes it as a bare number; a quoted number is accepted too.
type CaptureID int64

func (c *CaptureID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("capture id %q: %w", s, err)
		}
		*c = CaptureID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = CaptureID(n)
	return nil
}
