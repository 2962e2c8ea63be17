package refresh

import (
	"errors"

	"github.com/withObsrvr/enrollstat/internal/config"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// JobFromConfig builds the refresh job for the configured term pair.
func JobFromConfig(cfg config.Config) (Job, error) {
	router, err := cfg.Renames()
	if err != nil {
		return Job{}, err
	}
	pair, params, err := cfg.Params(router)
	if err != nil {
		return Job{}, err
	}

	job := Job{Pair: pair, Params: params, Baseline: BaselineReference}
	if cfg.Terms.Baseline == config.BaselinePrevious {
		job.Baseline = BaselinePrevious
	}
	set, err := router.Route(pair)
	switch {
	case err == nil:
		job.RenameVersion = set.Version
	case !errors.Is(err, term.ErrNoRenameSet):
		return Job{}, err
	}
	return job, nil
}
