package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/metrics"
	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/policy"
	"github.com/marketgate/mp-gateway/internal/remote"
)

// Sync outcomes reported in the job result summary. Partial is a non-failure
// terminal state: the page ceiling fired before the remote was exhausted, so
// operators can tell "broken" from "incomplete by design".
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
)

type SyncSummary struct {
	Resource  string `json:"resource"`
	Outcome   string `json:"outcome"`
	Pages     int    `json:"pages"`
	Fetched   int    `json:"fetched"`
	Upserted  int    `json:"upserted"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
	Audited   int    `json:"audited"`
}

// SyncHandler pulls one resource class for a connection across pages and
// converges the local mirror. It runs under the connection lock for its
// whole lifetime, retries included.
type SyncHandler struct {
	conns    ConnectionStore
	entities EntityStore
	cursors  CursorStore
	audit    AuditStore
	remote   remote.Client

	profile  policy.Profile
	pageSize int
	maxPages int
	sleep    sleepFunc
	log      *zap.Logger
}

func NewSyncHandler(conns ConnectionStore, entities EntityStore, cursors CursorStore, audit AuditStore,
	client remote.Client, profile policy.Profile, pageSize, maxPages int, log *zap.Logger) *SyncHandler {
	if pageSize <= 0 || pageSize > remote.MaxPageSize {
		pageSize = remote.MaxPageSize
	}
	if maxPages <= 0 {
		maxPages = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncHandler{
		conns:    conns,
		entities: entities,
		cursors:  cursors,
		audit:    audit,
		remote:   client,
		profile:  profile,
		pageSize: pageSize,
		maxPages: maxPages,
		sleep:    sleepContext,
		log:      log,
	}
}

// Run fetches and upserts every page of one resource. A mid-run failure
// records a failed cursor attempt but deliberately leaves last_success_at
// alone, and everything upserted before the failure stays upserted.
func (h *SyncHandler) Run(ctx context.Context, job *model.Job, resource model.ResourceType) (*SyncSummary, error) {
	conn, err := h.conns.GetByID(ctx, job.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection %d: %w", job.ConnectionID, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %d not found", job.ConnectionID)
	}

	summary := &SyncSummary{Resource: resource.String(), Outcome: OutcomeComplete}

	page := 1
	for {
		resp, err := callRemote(ctx, h.profile, h.sleep, func(ctx context.Context) (remote.Response, error) {
			return h.remote.List(ctx, conn, resource, page, h.pageSize)
		})
		if err != nil {
			h.recordCursor(ctx, job, resource, model.CursorFailed, err.Error())
			return nil, fmt.Errorf("fetch %s page %d: %w", resource, page, err)
		}

		list, err := remote.DecodeList(resp.Body)
		if err != nil {
			h.recordCursor(ctx, job, resource, model.CursorFailed, err.Error())
			return nil, fmt.Errorf("decode %s page %d: %w", resource, page, err)
		}

		records := list.Records()
		summary.Pages++
		summary.Fetched += len(records)
		h.upsertPage(ctx, conn, resource, records, summary)

		if len(records) == 0 || !list.More(page, h.pageSize) {
			break
		}
		if page >= h.maxPages {
			// Ceiling hit with pages left: a remote reporting bogus totals
			// must not drive an unbounded loop. Keep what we have.
			summary.Outcome = OutcomePartial
			h.log.Warn("sync page ceiling reached",
				zap.Int64("connection_id", conn.ID),
				zap.String("resource", resource.String()),
				zap.Int("max_pages", h.maxPages))
			break
		}
		page++
	}

	status := model.CursorSuccess
	if summary.Outcome == OutcomePartial {
		status = model.CursorPartial
	}
	h.recordCursor(ctx, job, resource, status, "")
	return summary, nil
}

// upsertPage converges one page. Each record is independent: a malformed or
// unstorable record is skipped and counted, never fatal to the page.
func (h *SyncHandler) upsertPage(ctx context.Context, conn *model.Connection, resource model.ResourceType,
	records []json.RawMessage, summary *SyncSummary) {
	for _, raw := range records {
		entity, err := normalizeRecord(conn, resource, raw)
		if err != nil {
			summary.Skipped++
			metrics.SyncRecordsTotal.WithLabelValues(resource.String(), "skipped").Inc()
			h.log.Warn("skipping malformed record",
				zap.Int64("connection_id", conn.ID),
				zap.String("resource", resource.String()),
				zap.Error(err))
			continue
		}

		change, err := h.entities.Upsert(ctx, entity)
		if err != nil {
			summary.Skipped++
			metrics.SyncRecordsTotal.WithLabelValues(resource.String(), "skipped").Inc()
			h.log.Error("entity upsert failed",
				zap.Int64("connection_id", conn.ID),
				zap.String("resource", resource.String()),
				zap.String("remote_id", entity.RemoteID),
				zap.Error(err))
			continue
		}

		if change.Unchanged {
			summary.Unchanged++
			metrics.SyncRecordsTotal.WithLabelValues(resource.String(), "unchanged").Inc()
			continue
		}

		summary.Upserted++
		metrics.SyncRecordsTotal.WithLabelValues(resource.String(), "upserted").Inc()

		if change.StatusChanged {
			entry := model.AuditEntry{
				ConnectionID:   conn.ID,
				ResourceType:   resource,
				RemoteID:       entity.RemoteID,
				PreviousStatus: change.PreviousStatus,
				NewStatus:      entity.Status,
				ExecutorApp:    model.ExecutorSyncFetch,
				ExecutorUser:   "system",
				Evidence:       raw,
			}
			if err := h.audit.Append(ctx, entry); err != nil {
				h.log.Error("audit append failed",
					zap.Int64("connection_id", conn.ID),
					zap.String("remote_id", entity.RemoteID),
					zap.Error(err))
				continue
			}
			summary.Audited++
		}
	}
}

func (h *SyncHandler) recordCursor(ctx context.Context, job *model.Job, resource model.ResourceType,
	status model.CursorStatus, errMsg string) {
	if err := h.cursors.Record(ctx, job.ConnectionID, resource, status, job.ID, errMsg, time.Now()); err != nil {
		h.log.Error("cursor record failed",
			zap.Int64("connection_id", job.ConnectionID),
			zap.String("resource", resource.String()),
			zap.Error(err))
	}
}
