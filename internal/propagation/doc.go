// Package propagation schedules spatial update events (light, fluid,
// redstone and the like) so that updates near observers are applied first
// and bursts of updates to the same area are coalesced.
//
// Every submitted [Event] goes through three stages:
//
//  1. Tiering. Loading-triggered events are Critical. Otherwise the distance
//     to the nearest [ReferencePoint] picks a tier band, and a fast-moving
//     reference point upgrades it by one step.
//  2. Debounce. A coordinate that already received the configured number of
//     updates in its current one-second window has further updates dropped
//     until it has been quiet for the stability threshold.
//  3. Merge. Critical events go straight to the ready queue. Others are
//     buffered per region (border coordinates in a separate buffer) and
//     flushed on a timer or when a buffer fills, after combining them into
//     the smallest equivalent set.
//
// Flushed batches wait in per-tier ready queues until the host drains them
// at the end of a tick, highest tier first, with a per-tick cap and a
// maximum delay for the Low tier.
package propagation
