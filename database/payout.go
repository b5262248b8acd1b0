// Copyright 2026 Blink Labs Software
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

package database

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/crowdfund/campaign"
	"github.com/blinklabs-io/crowdfund/database/models"
	"github.com/blinklabs-io/crowdfund/database/types"
	"github.com/blinklabs-io/crowdfund/transfer"
)

// RecordPayout implements transfer.PayoutStore
func (d *Database) RecordPayout(
	ctx context.Context,
	payout transfer.Transfer,
) (err error) {
	ctx, span := tracer.Start(
		ctx,
		"RecordPayout",
		trace.WithAttributes(
			attribute.String("payout.recipient", string(payout.To)),
		),
	)
	defer func() { endSpan(span, err) }()
	if err := d.metadata.AddPayout(ctx, &models.Payout{
		Recipient: string(payout.To),
		Time:      payout.Time.Unix(),
		Amount:    types.Uint64(payout.Amount),
	}); err != nil {
		return fmt.Errorf("record payout to %s: %w", payout.To, err)
	}
	return nil
}

// Payouts returns the recorded payouts to recipient, or every payout when
// recipient is the null identity, oldest first
func (d *Database) Payouts(
	ctx context.Context,
	recipient campaign.Identity,
) ([]transfer.Transfer, error) {
	rows, err := d.metadata.GetPayouts(ctx, string(recipient))
	if err != nil {
		return nil, err
	}
	ret := make([]transfer.Transfer, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, transfer.Transfer{
			Time:   time.Unix(row.Time, 0).UTC(),
			To:     campaign.Identity(row.Recipient),
			Amount: uint64(row.Amount),
		})
	}
	return ret, nil
}
