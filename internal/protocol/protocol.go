// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package protocol implements the FastCGI version 1 wire format: record
// headers, padding arithmetic, and the name/value pair encoding used by
// PARAMS, GET_VALUES and GET_VALUES_RESULT bodies. Every function here is
// pure: it reads or writes byte slices and never touches a socket.
package protocol

import "errors"

// RecordType identifies the kind of a FastCGI record.
type RecordType uint8

// Record types, as assigned by the FastCGI 1.0 specification.
const (
	BeginRequest RecordType = 1
	AbortRequest RecordType = 2
	EndRequest   RecordType = 3
	Params       RecordType = 4
	Stdin        RecordType = 5
	Stdout       RecordType = 6
	Stderr       RecordType = 7
	Data         RecordType = 8
	GetValues    RecordType = 9
	GetValuesResult RecordType = 10
	UnknownType  RecordType = 11
)

func (t RecordType) String() string {
	switch t {
	case BeginRequest:
		return "BEGIN_REQUEST"
	case AbortRequest:
		return "ABORT_REQUEST"
	case EndRequest:
		return "END_REQUEST"
	case Params:
		return "PARAMS"
	case Stdin:
		return "STDIN"
	case Stdout:
		return "STDOUT"
	case Stderr:
		return "STDERR"
	case Data:
		return "DATA"
	case GetValues:
		return "GET_VALUES"
	case GetValuesResult:
		return "GET_VALUES_RESULT"
	default:
		return "UNKNOWN_TYPE"
	}
}

// Role identifies the FastCGI application role requested by BEGIN_REQUEST.
type Role uint16

const (
	RoleResponder Role = 1
	RoleAuthorizer Role = 2
	RoleFilter     Role = 3
)

// ProtocolStatus is the single-byte status carried by END_REQUEST.
type ProtocolStatus uint8

const (
	RequestComplete ProtocolStatus = 0
	CantMpxConn     ProtocolStatus = 1
	Overloaded      ProtocolStatus = 2
	UnknownRole     ProtocolStatus = 3
)

// KeepConn is the BEGIN_REQUEST flag bit meaning the web server may reuse
// the connection after this request ends.
const KeepConn uint8 = 1

// Version1 is the only protocol version this implementation speaks.
const Version1 uint8 = 1

// HeaderLen is the fixed size, in bytes, of a record header.
const HeaderLen = 8

// Header is the 8-byte record header shared by every FastCGI record.
type Header struct {
	Version       uint8
	Type          RecordType
	RequestID     uint16
	ContentLength uint16
	PaddingLength uint8
	Reserved      uint8
}

// Marshal writes h into an 8-byte big-endian layout.
func (h Header) Marshal() [HeaderLen]byte {
	var b [HeaderLen]byte
	b[0] = h.Version
	b[1] = byte(h.Type)
	b[2] = byte(h.RequestID >> 8)
	b[3] = byte(h.RequestID)
	b[4] = byte(h.ContentLength >> 8)
	b[5] = byte(h.ContentLength)
	b[6] = h.PaddingLength
	b[7] = h.Reserved
	return b
}

// ErrShortHeader is returned by ParseHeader when fewer than HeaderLen bytes
// are available.
var ErrShortHeader = errors.New("protocol: short record header")

// ParseHeader decodes the first HeaderLen bytes of b into a Header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	return Header{
		Version:       b[0],
		Type:          RecordType(b[1]),
		RequestID:     uint16(b[2])<<8 | uint16(b[3]),
		ContentLength: uint16(b[4])<<8 | uint16(b[5]),
		PaddingLength: b[6],
		Reserved:      b[7],
	}, nil
}

// PaddingLength computes the number of padding bytes needed so that
// contentLength+padding is a multiple of 8.
func PaddingLength(contentLength int) uint8 {
	rem := contentLength % 8
	if rem == 0 {
		return 0
	}
	return uint8(8 - rem)
}

// BeginRequestBody is the content of a BEGIN_REQUEST record.
type BeginRequestBody struct {
	Role  Role
	Flags uint8
}

// ParseBeginRequestBody decodes an 8-byte BEGIN_REQUEST body.
func ParseBeginRequestBody(b []byte) (BeginRequestBody, error) {
	if len(b) < 8 {
		return BeginRequestBody{}, errors.New("protocol: short BEGIN_REQUEST body")
	}
	return BeginRequestBody{
		Role:  Role(uint16(b[0])<<8 | uint16(b[1])),
		Flags: b[2],
	}, nil
}

// Marshal encodes a BEGIN_REQUEST body into 8 bytes (5 reserved).
func (b BeginRequestBody) Marshal() [8]byte {
	var out [8]byte
	out[0] = byte(b.Role >> 8)
	out[1] = byte(b.Role)
	out[2] = b.Flags
	return out
}

// EndRequestBody is the content of an END_REQUEST record.
type EndRequestBody struct {
	AppStatus      uint32
	ProtocolStatus ProtocolStatus
}

// Marshal encodes an END_REQUEST body into 8 bytes (3 reserved).
func (b EndRequestBody) Marshal() [8]byte {
	var out [8]byte
	out[0] = byte(b.AppStatus >> 24)
	out[1] = byte(b.AppStatus >> 16)
	out[2] = byte(b.AppStatus >> 8)
	out[3] = byte(b.AppStatus)
	out[4] = byte(b.ProtocolStatus)
	return out
}

// UnknownTypeBody is the content of an UNKNOWN_TYPE record.
type UnknownTypeBody struct {
	Type RecordType
}

// Marshal encodes an UNKNOWN_TYPE body into 8 bytes (7 reserved).
func (b UnknownTypeBody) Marshal() [8]byte {
	var out [8]byte
	out[0] = byte(b.Type)
	return out
}

// Management variable names and pre-canned GET_VALUES_RESULT values.
const (
	MaxConnsVar  = "FCGI_MAX_CONNS"
	MaxReqsVar   = "FCGI_MAX_REQS"
	MpxsConnsVar = "FCGI_MPXS_CONNS"

	MaxConnsValue  = "10"
	MaxReqsValue   = "50"
	MpxsConnsValue = "1"
)
