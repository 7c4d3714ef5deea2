package email

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// SearchMessages returns messages matching the given criteria,
// newest-first, limited to opts.Limit results.
func (c *Client) SearchMessages(ctx context.Context, opts SearchOptions) ([]Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if _, err := c.selectMailbox(opts.Mailbox); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{}
	if opts.Query != "" {
		criteria.Text = append(criteria.Text, opts.Query)
	}
	if opts.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "From",
			Value: opts.From,
		})
	}
	if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}
	if !opts.Before.IsZero() {
		criteria.Before = opts.Before
	}

	searchData, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search mailbox: %w", err)
	}

	uids := limitNewest(searchData.AllUIDs(), opts.Limit)
	if len(uids) == 0 {
		return nil, nil
	}

	return c.fetchEnvelopes(uids)
}
