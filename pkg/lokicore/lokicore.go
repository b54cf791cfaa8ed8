// Package lokicore re-exports the small set of types an external
// collaborator — a dashboard, an SDK, a tool reading the event log —
// needs to decode loki-swarm's on-disk and wire state without importing
// its internal packages. Every type here is a plain alias: there is
// exactly one definition of each, owned by the internal package that
// produces it, so lokicore can never drift out of sync with it.
package lokicore

import (
	"github.com/loki-swarm/core/internal/bft"
	"github.com/loki-swarm/core/internal/checklist"
	"github.com/loki-swarm/core/internal/classifier"
	"github.com/loki-swarm/core/internal/council"
	"github.com/loki-swarm/core/internal/eventbus"
	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/orchestrator"
)

// Episode is one recorded unit of agent work (C1).
type Episode = memory.Episode

// Outcome is an Episode's terminal result.
type Outcome = memory.Outcome

// TaskItem is one unit of work tracked by the orchestrator's queue (C10).
type TaskItem = orchestrator.TaskItem

// TaskStatus is a TaskItem's lifecycle position.
type TaskStatus = orchestrator.Status

// Classification is the PRD tier/complexity verdict produced by the
// classifier (C4).
type Classification = classifier.Classification

// ConsensusRound is one PBFT-lite round tracked by the BFT layer (C7).
type ConsensusRound = bft.Round

// FaultRecord is one detected consistency/timeout/sycophancy fault (C6/C7).
type FaultRecord = bft.FaultRecord

// CouncilVote is one reviewer's vote on a proposal (C6).
type CouncilVote = council.Vote

// CouncilVerdict is the decided outcome of a Council vote.
type CouncilVerdict = council.Verdict

// Checklist is a project's compiled verification checklist (C11).
type Checklist = checklist.Checklist

// ChecklistItem is one entry within a Checklist.
type ChecklistItem = checklist.Item

// Event is one append-only event-bus record.
type Event = eventbus.Event

// DashboardState is the periodically-written operator snapshot (C10).
type DashboardState = orchestrator.DashboardState
