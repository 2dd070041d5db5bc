// Package scraper reads hearth-server's /metrics endpoint and folds the
// hearth_* families into a Stats summary for the stats command.
//
// The exposition is parsed with expfmt's text parser. Labelled families
// (evictions by reason, broadcasts by scope, inbound frames by kind) are
// kept per label value; everything else is summed.
package scraper
