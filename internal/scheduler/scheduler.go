// Package scheduler finds due campaigns and drives their dispatch. It is
// triggered two ways: an authenticated HTTP endpoint for external cron, and
// an optional in-process poller. Both paths converge on TriggerDue, so a
// cron hit and a poll tick racing on the same campaign resolve through the
// claim in the campaign store.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/audit"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/distlock"
)

const campaignLockTTL = 10 * time.Minute

// Runner dispatches one claimed campaign. Implemented by
// dispatch.Dispatcher.
type Runner interface {
	Run(ctx context.Context, campaign *domain.Campaign) (*dispatch.Result, error)
}

// Outcome is the per-campaign result of a trigger pass.
type Outcome struct {
	CampaignID string           `json:"campaign_id"`
	Name       string           `json:"name"`
	Claimed    bool             `json:"claimed"`
	Skipped    string           `json:"skipped,omitempty"` // reason when not claimed
	Status     string           `json:"status,omitempty"`
	Result     *dispatch.Result `json:"result,omitempty"`
}

// Report summarizes one trigger pass.
type Report struct {
	Checked   int       `json:"checked"`
	Triggered int       `json:"triggered"`
	Campaigns []Outcome `json:"campaigns"`
}

// Scheduler claims due campaigns and runs them through the dispatcher.
type Scheduler struct {
	campaigns dispatch.CampaignStore
	runner    Runner
	auditor   audit.Appender

	// lock backends; either may be nil, see distlock.NewLock.
	redis *redis.Client
	db    *sql.DB

	newLock func(key string) distlock.DistLock
	now     func() time.Time
}

// New creates a scheduler. auditor may be nil to disable audit logging.
func New(campaigns dispatch.CampaignStore, runner Runner, auditor audit.Appender,
	redisClient *redis.Client, db *sql.DB) *Scheduler {
	s := &Scheduler{
		campaigns: campaigns,
		runner:    runner,
		auditor:   auditor,
		redis:     redisClient,
		db:        db,
		now:       time.Now,
	}
	s.newLock = func(key string) distlock.DistLock {
		return distlock.NewLock(s.redis, s.db, key, campaignLockTTL)
	}
	return s
}

// TriggerDue processes due scheduled campaigns. When campaignID is
// non-empty only that campaign is considered; it must still be due. Each
// campaign is processed at most once across concurrent callers: the
// conditional claim is authoritative and the distributed lock keeps
// racing workers from doing redundant work before it.
func (s *Scheduler) TriggerDue(ctx context.Context, campaignID string) (*Report, error) {
	var (
		due []domain.Campaign
		err error
	)
	if campaignID != "" {
		c, err := s.campaigns.Get(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		if c.Status == domain.CampaignStatusScheduled && !c.ScheduledAt.After(s.now()) {
			due = []domain.Campaign{*c}
		} else {
			return &Report{
				Checked: 1,
				Campaigns: []Outcome{{
					CampaignID: c.ID, Name: c.Name,
					Skipped: fmt.Sprintf("not due (status %s)", c.Status),
				}},
			}, nil
		}
	} else {
		due, err = s.campaigns.DueCampaigns(ctx, s.now())
		if err != nil {
			return nil, fmt.Errorf("list due campaigns: %w", err)
		}
	}

	report := &Report{Checked: len(due)}
	for i := range due {
		report.Campaigns = append(report.Campaigns, s.processOne(ctx, &due[i]))
		if report.Campaigns[len(report.Campaigns)-1].Claimed {
			report.Triggered++
		}
	}
	return report, nil
}

func (s *Scheduler) processOne(ctx context.Context, campaign *domain.Campaign) Outcome {
	out := Outcome{CampaignID: campaign.ID, Name: campaign.Name}

	lock := s.newLock("campaign:" + campaign.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Scheduler] Lock error for campaign %s: %v", campaign.ID, err)
		out.Skipped = "lock error"
		return out
	}
	if !acquired {
		out.Skipped = "locked by another worker"
		return out
	}
	defer lock.Release(ctx)

	claimed, err := s.campaigns.Claim(ctx, campaign.ID)
	if err != nil {
		log.Printf("[Scheduler] Claim error for campaign %s: %v", campaign.ID, err)
		out.Skipped = "claim error"
		return out
	}
	if !claimed {
		out.Skipped = "already claimed"
		s.audit(ctx, audit.Event{CampaignID: campaign.ID, Type: audit.EventCampaignSkipped, Detail: "already claimed"})
		return out
	}
	out.Claimed = true
	s.audit(ctx, audit.Event{CampaignID: campaign.ID, Type: audit.EventCampaignClaimed})
	log.Printf("[Scheduler] Processing campaign %s (%s)", campaign.Name, campaign.ID)

	result, err := s.runner.Run(ctx, campaign)
	if err != nil {
		log.Printf("[Scheduler] Campaign %s dispatch failed: %v", campaign.ID, err)
		if ferr := s.campaigns.Finalize(ctx, campaign.ID, domain.CampaignStatusFailed); ferr != nil {
			log.Printf("[Scheduler] Finalize %s: %v", campaign.ID, ferr)
		}
		out.Status = string(domain.CampaignStatusFailed)
		s.audit(ctx, audit.Event{CampaignID: campaign.ID, Type: audit.EventCampaignCompleted, Detail: "dispatch error: " + err.Error()})
		return out
	}

	final := result.FinalStatus()
	if err := s.campaigns.Finalize(ctx, campaign.ID, final); err != nil {
		log.Printf("[Scheduler] Finalize %s: %v", campaign.ID, err)
	}
	out.Status = string(final)
	out.Result = result
	s.audit(ctx, audit.Event{
		CampaignID: campaign.ID,
		Type:       audit.EventCampaignCompleted,
		Detail:     fmt.Sprintf("%d sent, %d failed of %d", result.Sent, result.Failed, result.TotalRecipients),
	})
	return out
}

func (s *Scheduler) audit(ctx context.Context, ev audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Append(ctx, ev); err != nil {
		log.Printf("[Scheduler] Audit append failed: %v", err)
	}
}
