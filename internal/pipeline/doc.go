// Package pipeline defines the ordered fulfilment stages.
//
// The pipeline is declared in CUE (pipeline.cue, embedded) and compiled into
// StageDef values that parametrise the pending-set resolver, the advancement
// transaction and the statistics engine. Stage names found in history are
// normalised through each stage's aliases, so legacy names such as
// "Dispatch Material" resolve to "Dispatch Planning".
package pipeline
