// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. They are published after the owning transaction commits
// and drive best-effort side effects such as notifications.
const (
	// Child events
	EventChildRegistered     EventType = "child.registered"
	EventInitiationCompleted EventType = "child.initiation_completed"
	EventRankChanged         EventType = "child.rank_changed"

	// Challenge workflow events
	EventSubmissionCreated  EventType = "challenge.submission_created"
	EventSubmissionApproved EventType = "challenge.submission_approved"
	EventSubmissionRejected EventType = "challenge.submission_rejected"

	// Mission events
	EventMissionCompleted EventType = "mission.completed"

	// Reward events
	EventRewardRedeemed EventType = "reward.redeemed"
	EventRewardAwarded  EventType = "reward.awarded"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Child Events
// ═══════════════════════════════════════════════════════════════════════════

// ChildRegisteredEvent is emitted when a guardian registers a child.
type ChildRegisteredEvent struct {
	BaseEvent
	GuardianID  string `json:"guardian_id"`
	DisplayName string `json:"display_name"`
	AgeYears    int    `json:"age_years"`
}

// Payload implements Event interface.
func (e ChildRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guardian_id":  e.GuardianID,
		"display_name": e.DisplayName,
		"age_years":    e.AgeYears,
	}
}

// NewChildRegisteredEvent creates a new ChildRegisteredEvent.
func NewChildRegisteredEvent(childID, guardianID, displayName string, age int) ChildRegisteredEvent {
	return ChildRegisteredEvent{
		BaseEvent:   NewBaseEvent(EventChildRegistered, childID),
		GuardianID:  guardianID,
		DisplayName: displayName,
		AgeYears:    age,
	}
}

// InitiationCompletedEvent is emitted when a child finishes onboarding.
type InitiationCompletedEvent struct {
	BaseEvent
	GuardianID   string `json:"guardian_id"`
	AlterEgoName string `json:"alter_ego_name"`
	BonusPoints  int    `json:"bonus_points"`
}

// Payload implements Event interface.
func (e InitiationCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guardian_id":    e.GuardianID,
		"alter_ego_name": e.AlterEgoName,
		"bonus_points":   e.BonusPoints,
	}
}

// NewInitiationCompletedEvent creates a new InitiationCompletedEvent.
func NewInitiationCompletedEvent(childID, guardianID, alterEgo string, bonus int) InitiationCompletedEvent {
	return InitiationCompletedEvent{
		BaseEvent:    NewBaseEvent(EventInitiationCompleted, childID),
		GuardianID:   guardianID,
		AlterEgoName: alterEgo,
		BonusPoints:  bonus,
	}
}

// RankChangedEvent is emitted when a derived rank differs from the stored one.
type RankChangedEvent struct {
	BaseEvent
	GuardianID string `json:"guardian_id"`
	OldRank    string `json:"old_rank"`
	NewRank    string `json:"new_rank"`
}

// Payload implements Event interface.
func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guardian_id": e.GuardianID,
		"old_rank":    e.OldRank,
		"new_rank":    e.NewRank,
	}
}

// NewRankChangedEvent creates a new RankChangedEvent.
func NewRankChangedEvent(childID, guardianID, oldRank, newRank string) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent:  NewBaseEvent(EventRankChanged, childID),
		GuardianID: guardianID,
		OldRank:    oldRank,
		NewRank:    newRank,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Challenge Workflow Events
// ═══════════════════════════════════════════════════════════════════════════

// SubmissionEvent covers creation and review of a challenge submission.
type SubmissionEvent struct {
	BaseEvent
	ChildID        string `json:"child_id"`
	GuardianID     string `json:"guardian_id"`
	ChallengeID    string `json:"challenge_id"`
	ChallengeTitle string `json:"challenge_title"`
	PointsAwarded  int    `json:"points_awarded"`
}

// Payload implements Event interface.
func (e SubmissionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":        e.ChildID,
		"guardian_id":     e.GuardianID,
		"challenge_id":    e.ChallengeID,
		"challenge_title": e.ChallengeTitle,
		"points_awarded":  e.PointsAwarded,
	}
}

// NewSubmissionEvent creates a submission event of the given type.
func NewSubmissionEvent(eventType EventType, submissionID, childID, guardianID, challengeID, title string, points int) SubmissionEvent {
	return SubmissionEvent{
		BaseEvent:      NewBaseEvent(eventType, submissionID),
		ChildID:        childID,
		GuardianID:     guardianID,
		ChallengeID:    challengeID,
		ChallengeTitle: title,
		PointsAwarded:  points,
	}
}

// MissionCompletedEvent is emitted the first time a child's progress reaches 100%.
type MissionCompletedEvent struct {
	BaseEvent
	ChildID     string    `json:"child_id"`
	GuardianID  string    `json:"guardian_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Payload implements Event interface.
func (e MissionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":     e.ChildID,
		"guardian_id":  e.GuardianID,
		"completed_at": e.CompletedAt.Format(time.RFC3339),
	}
}

// NewMissionCompletedEvent creates a new MissionCompletedEvent.
func NewMissionCompletedEvent(missionID, childID, guardianID string, at time.Time) MissionCompletedEvent {
	return MissionCompletedEvent{
		BaseEvent:   NewBaseEvent(EventMissionCompleted, missionID),
		ChildID:     childID,
		GuardianID:  guardianID,
		CompletedAt: at,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reward Events
// ═══════════════════════════════════════════════════════════════════════════

// RewardGrantedEvent covers both paid redemptions and manual awards.
type RewardGrantedEvent struct {
	BaseEvent
	ChildID    string `json:"child_id"`
	GuardianID string `json:"guardian_id"`
	RewardID   string `json:"reward_id"`
	RewardCode string `json:"reward_code"`
	RewardName string `json:"reward_name"`
	RewardKind string `json:"reward_kind"`
	CostPaid   int    `json:"cost_paid"`
}

// Payload implements Event interface.
func (e RewardGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":    e.ChildID,
		"guardian_id": e.GuardianID,
		"reward_id":   e.RewardID,
		"reward_code": e.RewardCode,
		"reward_name": e.RewardName,
		"reward_kind": e.RewardKind,
		"cost_paid":   e.CostPaid,
	}
}

// NewRewardGrantedEvent creates a reward event of the given type.
func NewRewardGrantedEvent(eventType EventType, redemptionID, childID, guardianID, rewardID, code, name, kind string, cost int) RewardGrantedEvent {
	return RewardGrantedEvent{
		BaseEvent:  NewBaseEvent(eventType, redemptionID),
		ChildID:    childID,
		GuardianID: guardianID,
		RewardID:   rewardID,
		RewardCode: code,
		RewardName: name,
		RewardKind: kind,
		CostPaid:   cost,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
