// Package jsonl assembles and decodes newline-delimited JSON records
// arriving as arbitrary byte chunks from a transport.
//
// # Overview
//
// The package provides the two leaf stages of the ingestion pipeline:
//
//   - Accumulator: appends raw chunks to a bounded pending buffer and
//     extracts complete newline-terminated records
//   - Decoder: strictly decodes one record into a typed message.Event,
//     isolating failures per record
//
// Both transports funnel their receive bytes through the same
// Accumulator -> Decoder pair, so parsing semantics are identical
// regardless of how bytes arrive.
//
// # Record Assembly
//
// The upstream service writes one JSON object per line, but the network
// delivers bytes in arbitrary chunks: a chunk may hold many records, a
// fraction of one, or bytes from two adjacent records. The Accumulator
// persists the incomplete tail between Ingest calls:
//
//	acc := jsonl.NewAccumulator()
//
//	records, _ := acc.Ingest([]byte("{\"id\":1}\n{\"id\":2"))
//	// records: [{"id":1}]   buffered: {"id":2
//
//	records, _ = acc.Ingest([]byte("}\n"))
//	// records: [{"id":2}]   buffered: empty
//
// Blank lines are skipped silently and a trailing carriage return is
// stripped, so CRLF input parses the same as LF.
//
// # Bounded Memory
//
// A stream that never delivers a newline would otherwise grow the
// pending buffer without limit. After each Ingest the buffer is checked
// against its maximum size (DefaultMaxBufferSize, 1 MiB); on overflow
// the buffer is cleared and the overflow is reported through the error
// return, never as a partial record handed downstream.
//
// Two policies control what happens next:
//
//   - OverflowReset (default): the error is classified invalid and the
//     accumulator keeps operating with an empty buffer. The record in
//     flight is lost; callers needing zero loss must set the limit well
//     above their largest record.
//   - OverflowFail: the error is classified fatal and the accumulator
//     refuses further input until Reset is called, for deployments that
//     prefer tearing the stream down over losing data silently.
//
// # Strict Decoding
//
// Decode accepts exactly one syntactically complete JSON object per
// record. Arrays, scalars, and trailing bytes after the object are
// rejected. A rejected record becomes a message.DecodeFailure carrying
// the original line and diagnostic; decoding continues with the next
// record:
//
//	dec := jsonl.NewDecoder()
//	for _, record := range records {
//	    evt, failure := dec.Decode(record)
//	    if failure != nil {
//	        // surface the diagnostic, keep consuming
//	        continue
//	    }
//	    // evt.Fields holds the decoded object
//	}
//
// Envelope fields are extracted when present: "id" (string or number)
// becomes the event ID, "type" (dotted three-part string) becomes the
// event Type, and "ts" (epoch seconds, epoch milliseconds, or RFC3339)
// becomes the emission timestamp. Records without an id get a generated
// one; records without a type get message.RecordType.
package jsonl
