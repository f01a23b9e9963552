// Package journal records control sessions.
//
// Every session produces one Entry: which focus mode was requested, how long
// the device was held and how the session ended. Entries go to a Journal;
// applications pick the sinks:
//
//	// keep the last entries in memory for the web UI
//	ring := journal.NewRing(50)
//
//	// and append them to a CBOR file
//	file, _ := journal.NewFileJournal("/var/log/opalfocus/sessions.cbor")
//
//	j := journal.NewMulti(ring, file)
//
// Files are a plain concatenation of CBOR-encoded entries; ReadFile decodes
// them back.
package journal
