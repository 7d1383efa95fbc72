// Package feature defines the event stream produced by the nested row
// decoder.
//
// A feature collection is emitted as a flat sequence of events:
//
//	OnStart
//	  OnFeatureStart
//	    OnValue(id)
//	    OnArrayStart(parts)
//	      OnObjectStart(parts) OnValue(parts.floors) OnObjectEnd(parts)
//	    OnArrayEnd(parts)
//	  OnFeatureEnd
//	OnEnd
//
// Every event carries a Context by value. Consumers (GeoJSON writers, tile
// encoders, tests) implement Handler.
//
// Recorder captures a stream for inspection; MarshalCanonical and
// Fingerprint serialize recorded streams deterministically so that two
// decoders fed identical rows can be compared byte for byte.
package feature
