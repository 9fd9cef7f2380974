package strategy

import "fmt"

// Kind identifies a betting strategy. Every agent runs exactly one.
type Kind string

const (
	KindRandom     Kind = "random"
	KindLeader     Kind = "leader"
	KindUnderdog   Kind = "underdog"
	KindFavourite  Kind = "favourite"
	KindLinex      Kind = "linex"
	KindPrivileged Kind = "privileged"
	KindClassifier Kind = "classifier"
	KindRL         Kind = "rl"
)

// AllKinds lists every strategy kind in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindRandom,
		KindLeader,
		KindUnderdog,
		KindFavourite,
		KindLinex,
		KindPrivileged,
		KindClassifier,
		KindRL,
	}
}

// ParseKind validates a kind read from config.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("strategy.ParseKind: unknown kind %q", s)
}

// Learns reports whether agents of this kind train a model between races.
func (k Kind) Learns() bool {
	return k == KindRL
}
