// Package pairing turns beacon sightings into pucks and zone triggers.
//
// A beacon entering range is looked up by its identity (proximity UUID,
// major, minor):
//
//   - known puck: the enter-zone trigger fires (OutcomeAlreadyPaired)
//   - unknown, auto_pair on: the puck is created and discovery requested
//     (OutcomePaired)
//   - unknown, auto_pair off: a candidate is held per address until it is
//     accepted through the API or its TTL lapses (OutcomeCandidate)
//
// A known puck leaving range fires exit-zone. Several candidates can be
// pending at once; each address is tracked independently.
package pairing
