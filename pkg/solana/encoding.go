package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/solana/shortvec"
)

func (s Signature) ToBase58() string {
	return base58.Encode(s[:])
}

func (b Blockhash) ToBase58() string {
	return base58.Encode(b[:])
}

// wireWriter appends to an in memory buffer, which never fails.
type wireWriter struct {
	buf bytes.Buffer
}

func (w *wireWriter) u8(b byte) {
	_ = w.buf.WriteByte(b)
}

func (w *wireWriter) raw(b []byte) {
	_, _ = w.buf.Write(b)
}

func (w *wireWriter) length(n int) {
	_, _ = shortvec.EncodeLen(&w.buf, n)
}

// compact writes a compact-u16 length followed by b.
func (w *wireWriter) compact(b []byte) {
	w.length(len(b))
	w.raw(b)
}

// wireReader reads the wire format. The first failure is kept and every
// later read is a no-op.
type wireReader struct {
	buf *bytes.Buffer
	err error
}

func newWireReader(b []byte) *wireReader {
	return &wireReader{buf: bytes.NewBuffer(b)}
}

func (r *wireReader) fail(err error, format string, args ...interface{}) {
	if r.err == nil {
		r.err = errors.Wrapf(err, format, args...)
	}
}

func (r *wireReader) u8(what string) byte {
	if r.err != nil {
		return 0
	}
	b, err := r.buf.ReadByte()
	if err != nil {
		r.fail(err, "failed to read %s", what)
	}
	return b
}

func (r *wireReader) fill(dst []byte, what string) {
	if r.err != nil {
		return
	}
	if _, err := io.ReadFull(r.buf, dst); err != nil {
		r.fail(err, "failed to read %s", what)
	}
}

func (r *wireReader) length(what string) int {
	if r.err != nil {
		return 0
	}
	n, err := shortvec.DecodeLen(r.buf)
	if err != nil {
		r.fail(err, "failed to read %s length", what)
	}
	return n
}

func (r *wireReader) compact(what string) []byte {
	b := make([]byte, r.length(what))
	r.fill(b, what)
	return b
}

func (t Transaction) Marshal() []byte {
	var w wireWriter
	w.length(len(t.Signatures))
	for _, s := range t.Signatures {
		w.raw(s[:])
	}
	w.raw(t.Message.Marshal())
	return w.buf.Bytes()
}

func (t *Transaction) Unmarshal(b []byte) error {
	r := newWireReader(b)

	t.Signatures = make([]Signature, r.length("signatures"))
	for i := range t.Signatures {
		r.fill(t.Signatures[i][:], "signature")
	}
	if r.err != nil {
		return r.err
	}

	return t.Message.Unmarshal(r.buf.Bytes())
}

// Marshal encodes the message in the legacy format.
func (m Message) Marshal() []byte {
	var w wireWriter
	w.u8(m.Header.NumSignatures)
	w.u8(m.Header.NumReadonlySigned)
	w.u8(m.Header.NumReadOnly)

	w.length(len(m.Accounts))
	for _, a := range m.Accounts {
		w.raw(a)
	}
	w.raw(m.RecentBlockhash[:])

	w.length(len(m.Instructions))
	for _, ix := range m.Instructions {
		w.u8(ix.ProgramIndex)
		w.compact(ix.Accounts)
		w.compact(ix.Data)
	}
	return w.buf.Bytes()
}

// Unmarshal decodes a legacy message. Versioned messages, whose first byte
// has the high bit set, are rejected.
func (m *Message) Unmarshal(b []byte) error {
	switch {
	case len(b) == 0:
		return errors.New("empty message")
	case b[0]&0x80 != 0:
		return errors.New("versioned messages not supported")
	}

	r := newWireReader(b)
	m.Header.NumSignatures = r.u8("num signatures")
	m.Header.NumReadonlySigned = r.u8("num readonly signatures")
	m.Header.NumReadOnly = r.u8("num readonly")

	m.Accounts = make([]ed25519.PublicKey, r.length("accounts"))
	for i := range m.Accounts {
		m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		r.fill(m.Accounts[i], "account")
	}
	r.fill(m.RecentBlockhash[:], "recent blockhash")

	m.Instructions = make([]CompiledInstruction, r.length("instructions"))
	for i := range m.Instructions {
		ix := CompiledInstruction{
			ProgramIndex: r.u8("program index"),
			Accounts:     r.compact("instruction accounts"),
			Data:         r.compact("instruction data"),
		}
		if r.err != nil {
			return errors.Wrapf(r.err, "invalid instruction %d", i)
		}

		if int(ix.ProgramIndex) >= len(m.Accounts) {
			return errors.Errorf("program index out of range: %d:%d", i, ix.ProgramIndex)
		}
		for _, index := range ix.Accounts {
			if int(index) >= len(m.Accounts) {
				return errors.Errorf("account index out of range: %d:%d", i, index)
			}
		}
		m.Instructions[i] = ix
	}
	return r.err
}
