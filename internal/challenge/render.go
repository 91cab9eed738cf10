// ABOUTME: Text rendering and parsing of sign-in challenges
// ABOUTME: Wallets sign the rendered text byte-for-byte, so the layout is fixed

package challenge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	headerMiddle = " wants you to sign in with your "
	headerSuffix = " account:"

	uriPrefix        = "URI: "
	versionPrefix    = "Version: "
	chainIDPrefix    = "Chain ID: "
	noncePrefix      = "Nonce: "
	issuedAtPrefix   = "Issued At: "
	expirationPrefix = "Expiration Time: "

	renderedLines = 11
)

// Render returns the exact text the wallet signs:
//
//	example.com wants you to sign in with your Ethereum account:
//	0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed
//
//	Login to the app
//
//	URI: https://example.com
//	Version: 1
//	Chain ID: 1
//	Nonce: 4e6f7420696e20757365
//	Issued At: 2021-05-06T19:17:10.123456789Z
//	Expiration Time: 2021-05-06T19:22:10.123456789Z
func (c *Challenge) Render() string {
	var b strings.Builder
	b.WriteString(c.Domain + headerMiddle + c.Account + headerSuffix + "\n")
	b.WriteString(c.Address + "\n\n")
	b.WriteString(c.Statement + "\n\n")
	b.WriteString(uriPrefix + c.URI + "\n")
	b.WriteString(versionPrefix + strconv.Itoa(c.Version) + "\n")
	b.WriteString(chainIDPrefix + c.ChainID + "\n")
	b.WriteString(noncePrefix + c.Nonce + "\n")
	b.WriteString(issuedAtPrefix + formatTime(c.IssuedAt) + "\n")
	b.WriteString(expirationPrefix + formatTime(c.ExpirationTime))
	return b.String()
}

func (c *Challenge) String() string {
	return c.Render()
}

// Parse is the inverse of Render. The origin scheme is not part of the
// rendered text and is left empty.
func Parse(text string) (*Challenge, error) {
	lines := strings.Split(text, "\n")
	if len(lines) != renderedLines {
		return nil, fmt.Errorf("%w: got %d lines, want %d", ErrMalformedChallenge, len(lines), renderedLines)
	}

	header := lines[0]
	domain, rest, ok := strings.Cut(header, headerMiddle)
	if !ok || !strings.HasSuffix(rest, headerSuffix) {
		return nil, fmt.Errorf("%w: bad header %q", ErrMalformedChallenge, header)
	}
	if lines[2] != "" || lines[4] != "" {
		return nil, fmt.Errorf("%w: missing blank separator lines", ErrMalformedChallenge)
	}

	c := &Challenge{
		Domain:    domain,
		Account:   strings.TrimSuffix(rest, headerSuffix),
		Address:   lines[1],
		Statement: lines[3],
	}

	fields := []struct {
		prefix string
		dst    *string
	}{
		{uriPrefix, &c.URI},
		{versionPrefix, nil},
		{chainIDPrefix, &c.ChainID},
		{noncePrefix, &c.Nonce},
		{issuedAtPrefix, nil},
		{expirationPrefix, nil},
	}
	values := make([]string, len(fields))
	for i, f := range fields {
		line := lines[5+i]
		v, ok := strings.CutPrefix(line, f.prefix)
		if !ok {
			return nil, fmt.Errorf("%w: expected %q line, got %q", ErrMalformedChallenge, strings.TrimSpace(f.prefix), line)
		}
		values[i] = v
		if f.dst != nil {
			*f.dst = v
		}
	}

	var err error
	if c.Version, err = strconv.Atoi(values[1]); err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrMalformedChallenge, values[1], err)
	}
	if c.IssuedAt, err = parseTime(values[4]); err != nil {
		return nil, err
	}
	if c.ExpirationTime, err = parseTime(values[5]); err != nil {
		return nil, err
	}
	return c, nil
}

// formatTime renders RFC 3339 in UTC with as many fractional digits as needed.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedChallenge, s, err)
	}
	return t.UTC(), nil
}
