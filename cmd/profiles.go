package cmd

import (
	"github.com/spigell/property-matcher/internal/logger"
	"github.com/spigell/property-matcher/internal/matching"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Rank requirement profiles interested in one listing",
	Run: func(cmd *cobra.Command, _ []string) {
		rankProfiles(cmd)
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)

	profilesCmd.Flags().StringP("listing", "l", "", "listing id (asked interactively when empty)")
	profilesCmd.Flags().StringP("output", "o", outputText, "output format: text or json")
}

// rankProfiles is the reverse ranking command.
func rankProfiles(cmd *cobra.Command) {
	output, _ := cmd.Flags().GetString("output")
	if err := validateOutput(output); err != nil {
		cobra.CheckErr(err)
	}

	s := newSession(cmd)
	defer s.close()

	flagListing, _ := cmd.Flags().GetString("listing")
	listingID, err := chooseListing(flagListing, s.snapshot.Listings)
	if err != nil {
		s.logger.Fatal("choosing a listing", zap.Error(err))
	}

	listing, err := s.snapshot.FindListing(listingID)
	if err != nil {
		s.logger.Fatal("finding the listing", zap.Error(err))
	}

	log := logger.WithFields(s.logger, logger.RunFields("", string(matching.Reverse), "", listing.ID)...)

	ranking, err := s.engine.RankProfilesForListing(s.ctx, listing, s.snapshot.Profiles)
	if err != nil {
		log.Fatal("ranking profiles", zap.Error(err))
	}

	threshold := s.engine.Policy().ReverseThreshold
	report := newReverseReport(s.runID, listing, threshold, ranking, s.snapshot.Profiles)

	log.Info("profiles ranked",
		zap.Int("candidates", ranking.Candidates),
		zap.Int("results", len(report.Results)),
		zap.Int("rejected", len(report.Rejected)),
	)

	out := cmd.OutOrStdout()
	if output == outputJSON {
		if err := writeJSON(out, report); err != nil {
			log.Fatal("writing output", zap.Error(err))
		}
		return
	}
	renderReverse(out, report)
}
