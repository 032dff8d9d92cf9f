package raft

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger provides structured, per-node logging with one method per
// event kind (LogStateChange, LogElectionWon, LogVoteGranted, ...),
// backed by go.uber.org/zap's SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
	node  NodeId
}

// NewLogger builds a Logger for nodeID using a production zap config at
// the given level ("debug", "info", "warn", "error").
func NewLogger(nodeID NodeId, level string) *Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{
		sugar: base.Sugar().With("node", nodeID.String()),
		node:  nodeID,
	}
}

// NewNopLogger returns a Logger that discards everything, for tests.
func NewNopLogger(nodeID NodeId) *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), node: nodeID}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

func (l *Logger) Debug(msg string) { l.sugar.Debug(msg) }
func (l *Logger) Info(msg string)  { l.sugar.Info(msg) }
func (l *Logger) Warn(msg string)  { l.sugar.Warn(msg) }
func (l *Logger) Error(msg string) { l.sugar.Error(msg) }

// WithCorrelation returns a derived Logger tagging every subsequent line
// with a fresh correlation ID, along with that ID. Nothing in this
// package calls it; the state loops log through the plain Logger.
func (l *Logger) WithCorrelation() (*Logger, string) {
	id := uuid.NewString()
	return &Logger{sugar: l.sugar.With("corr_id", id), node: l.node}, id
}

// Event-specific log helpers, one per lifecycle notification a state
// loop emits.

func (l *Logger) LogStateChange(oldState, newState State, term uint64) {
	l.Infof("%s -> %s (term=%d)", oldState, newState, term)
}

func (l *Logger) LogElectionStart(term uint64, preVote bool) {
	if preVote {
		l.Infof("starting pre-vote round for term %d", term)
	} else {
		l.Infof("starting election for term %d", term)
	}
}

func (l *Logger) LogElectionWon(term uint64, granted, total int) {
	l.Infof("won election for term %d (granted=%d/%d)", term, granted, total)
}

func (l *Logger) LogElectionLost(term uint64, reason string) {
	l.Infof("lost election for term %d: %s", term, reason)
}

func (l *Logger) LogVoteGranted(candidate NodeId, term uint64, preVote bool) {
	l.Infof("granted %svote to %s for term %d", votePrefix(preVote), candidate, term)
}

func (l *Logger) LogVoteDenied(candidate NodeId, term uint64, reason string) {
	l.Infof("denied vote to %s for term %d: %s", candidate, term, reason)
}

func (l *Logger) LogHeartbeatSent(term uint64, peerCount int) {
	l.Debugf("sent heartbeat to %d peers (term=%d)", peerCount, term)
}

func (l *Logger) LogHeartbeatReceived(leaderID NodeId, term uint64) {
	l.Debugf("received heartbeat from %s (term=%d)", leaderID, term)
}

func (l *Logger) LogStepDown(oldTerm, newTerm uint64) {
	l.Infof("stepping down: term %d -> %d", oldTerm, newTerm)
}

func (l *Logger) LogElectionTimeout() {
	l.Debug("election timeout, becoming pre-candidate")
}

func votePrefix(preVote bool) string {
	if preVote {
		return "pre-"
	}
	return ""
}
