package algorithm

import "minhton/internal/procinfo"

// Key helpers. Every algorithm category stores its in-flight state
// under procinfo.Key{Kind, RefEventID} (spec.md §3); these wrappers
// keep the Kind constant local to its owning category so individual
// strategy packages never have to spell out procinfo.Kind literals.

func JoinKey(eventID uint64) procinfo.Key {
	return procinfo.Key{Kind: procinfo.KindJoin, RefEventID: eventID}
}

func AcceptChildKey(eventID uint64) procinfo.Key {
	return procinfo.Key{Kind: procinfo.KindAcceptChild, RefEventID: eventID}
}

func BootstrapKey(eventID uint64) procinfo.Key {
	return procinfo.Key{Kind: procinfo.KindBootstrap, RefEventID: eventID}
}

func LeaveKey(eventID uint64) procinfo.Key {
	return procinfo.Key{Kind: procinfo.KindLeave, RefEventID: eventID}
}

func FindReplacementKey(eventID uint64) procinfo.Key {
	return procinfo.Key{Kind: procinfo.KindFindReplacement, RefEventID: eventID}
}

func EntitySearchInquiryKey(refEventID uint64) procinfo.Key {
	return procinfo.Key{Kind: procinfo.KindEntitySearchInquiry, RefEventID: refEventID}
}
