// Package wire handles reading and writing newline-delimited JSON messages
// over a net.Conn, with optional NaCl secretbox encryption.
//
// Wire format (unencrypted):
//
//	<json>\n
//
// Wire format (encrypted):
//
//	<base64(nonce+ciphertext)>\n
//
// The encrypted form is just a base64 blob on the wire so that the framing
// logic is identical in both cases: every line is a single message.
package wire

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.klb.dev/clipmind/internal/crypto"
	"go.klb.dev/clipmind/internal/message"
)

const (
	// MaxMessageSize is the largest line we will read (16 MiB). A full
	// history of screenshots fits comfortably.
	MaxMessageSize = 16 * 1024 * 1024

	writeDeadline = 5 * time.Second
)

var ErrTooLarge = errors.New("wire: message too large")

// Conn wraps a net.Conn with newline-delimited JSON framing and optional
// encryption. WriteMsg is safe for concurrent use; ReadMsg is not.
type Conn struct {
	conn net.Conn
	sc   *bufio.Scanner
	key  *[32]byte // nil = no encryption

	wmu sync.Mutex
}

// New wraps conn. If key is non-nil every message is encrypted with NaCl
// secretbox before being written and decrypted after being read.
func New(conn net.Conn, key *[32]byte) *Conn {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64*1024), MaxMessageSize)
	return &Conn{conn: conn, sc: sc, key: key}
}

// Underlying returns the underlying net.Conn.
func (c *Conn) Underlying() net.Conn { return c.conn }

// SetReadDeadline sets or clears the read deadline.
func (c *Conn) SetReadDeadline(d time.Duration) {
	if d == 0 {
		_ = c.conn.SetReadDeadline(time.Time{})
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// WriteMsg serialises msg to JSON, optionally encrypts it, and writes it
// followed by a newline.
func (c *Conn) WriteMsg(msg *message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var line []byte
	if c.key != nil {
		ct, err := crypto.Seal(raw, c.key)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		b64 := base64.StdEncoding.EncodeToString(ct)
		line = append([]byte(b64), '\n')
	} else {
		line = append(raw, '\n')
	}
	if len(line) > MaxMessageSize {
		return fmt.Errorf("%w (%d bytes)", ErrTooLarge, len(line))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err = c.conn.Write(line)
	_ = c.conn.SetWriteDeadline(time.Time{})
	return err
}

// ReadMsg reads one newline-terminated line, optionally decrypts it, and
// deserialises it into a Message. It returns io.EOF on a clean close.
func (c *Conn) ReadMsg() (*message.Message, error) {
	if !c.sc.Scan() {
		err := c.sc.Err()
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrTooLarge
		}
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	line := c.sc.Bytes()

	var raw []byte
	if c.key != nil {
		ct, err := base64.StdEncoding.DecodeString(string(line))
		if err != nil {
			return nil, fmt.Errorf("base64 decode: %w", err)
		}
		raw, err = crypto.Open(ct, c.key)
		if err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
	} else {
		raw = line
	}

	return message.Decode(raw)
}
