// Package data implements the static type system of the dataflow graph.
//
// A Signature is the only contract two processors agree on when they are
// linked. A Data value pairs a signature with a payload whose shape the
// signature fully determines:
//
//	value  ArrayLength elements × NumCoords scalars (float32, int32 or uint32)
//	curve  ArrayLength elements × NumCoords curves of control points
//	text   ArrayLength strings
//	image  ArrayLength shared texture handles
//	buffer ArrayLength shared buffer handles
//
// Payload is a closed set of types. CanLink and ConvertTo switch over every
// pair exhaustively, so a new payload kind fails to compile until both handle
// it.
//
// Link gating is asymmetric. Value and image consumers are loose sinks and
// accept any producer; curve and text consumers need the same type; buffer
// consumers need an identical signature.
package data
