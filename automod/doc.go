// Automated moderation for group chat messages.
//
// This package (`github.com/aegis-bot/warden/automod`) inspects a stream of inbound messages, classifies each against a set of independently configurable filters, tracks per-author message rate and duplicate content over a sliding window, escalates repeat offenders through graduated sanctions (warn, mute, ban), and keeps an auditable ledger of violations.
//
// The pieces live in sub-packages: `filter` (pure classifiers), `behavior` (sliding-window tracker), `ledger` (violation history), `escalation` (sanction tiers), `effects` (ordered action execution), and `engine` (the per-message pipeline). See `cmd/warden` for a daemon built on this package.
package automod
