package ebics

import (
	"context"
	"fmt"
)

// Connect advances a connection towards the initialized state:
// INI and HIA are sent if still pending, and the bank keys fetched
// with HPB once available. The returned snapshot reflects all
// progress made, also when an error is returned; key states only ever
// move forward. Calling Connect on an initialized connection is a
// no-op.
func (c *Client) Connect(ctx context.Context, sub *Subscriber) (*Subscriber, error) {
	next := sub.clone()
	if err := next.requireKeys(); err != nil {
		return next, err
	}
	if next.Initialized() {
		return next, nil
	}

	// After a crash or a restored backup the INI/HIA outcome is
	// unknown. A successful HPB proves the bank accepted both.
	if next.IniState == StateUnknown || next.HiaState == StateUnknown {
		hpb, err := c.HpbRequest(ctx, next)
		if err == nil {
			next.BankAuthenticationKey = hpb.AuthenticationKey
			next.BankEncryptionKey = hpb.EncryptionKey
			next.IniState = StateSent
			next.HiaState = StateSent
			return next, nil
		}
		c.log.Debug("tentative HPB failed, proceeding with INI/HIA",
			"host", next.HostID, "error", err)
	}

	if next.IniState != StateSent {
		if err := c.IniRequest(ctx, next); err != nil {
			return next, fmt.Errorf("INI order failed: %w", err)
		}
		next.IniState = StateSent
		c.log.Info("INI order accepted", "host", next.HostID, "user", next.UserID)
	}

	if next.HiaState != StateSent {
		if err := c.HiaRequest(ctx, next); err != nil {
			return next, fmt.Errorf("HIA order failed: %w", err)
		}
		next.HiaState = StateSent
		c.log.Info("HIA order accepted", "host", next.HostID, "user", next.UserID)
	}

	// Best effort: HPB keeps failing until the bank operator activates
	// the subscriber keys, which is not an error of this connection.
	hpb, err := c.HpbRequest(ctx, next)
	if err != nil {
		c.log.Info("bank keys not yet available",
			"host", next.HostID, "error", err)
		return next, nil
	}
	next.BankAuthenticationKey = hpb.AuthenticationKey
	next.BankEncryptionKey = hpb.EncryptionKey
	c.log.Info("bank keys fetched", "host", next.HostID)
	return next, nil
}
