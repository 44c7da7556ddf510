package cmd

import (
	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/logger"
	"github.com/spigell/property-matcher/internal/matching"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Score one profile against one listing and explain every factor",
	Run: func(cmd *cobra.Command, _ []string) {
		explainPair(cmd)
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringP("profile", "p", "", "requirement profile id (asked interactively when empty)")
	explainCmd.Flags().StringP("listing", "l", "", "listing id (asked interactively when empty)")
	explainCmd.Flags().StringP("output", "o", outputText, "output format: text or json")
}

func explainPair(cmd *cobra.Command) {
	output, _ := cmd.Flags().GetString("output")
	if err := validateOutput(output); err != nil {
		cobra.CheckErr(err)
	}

	s := newSession(cmd)
	defer s.close()

	flagProfile, _ := cmd.Flags().GetString("profile")
	profileID, err := chooseProfile(flagProfile, s.snapshot.Profiles)
	if err != nil {
		s.logger.Fatal("choosing a profile", zap.Error(err))
	}
	flagListing, _ := cmd.Flags().GetString("listing")
	listingID, err := chooseListing(flagListing, s.snapshot.Listings)
	if err != nil {
		s.logger.Fatal("choosing a listing", zap.Error(err))
	}

	profile, err := s.snapshot.FindProfile(profileID)
	if err != nil {
		s.logger.Fatal("finding the profile", zap.Error(err))
	}
	listing, err := s.snapshot.FindListing(listingID)
	if err != nil {
		s.logger.Fatal("finding the listing", zap.Error(err))
	}

	log := logger.WithFields(s.logger, logger.RunFields("", "", profile.ID, listing.ID)...)

	report, err := scorePair(s.engine, s.runID, profile, listing, s.snapshot.Feedback)
	if err != nil {
		log.Fatal("scoring the pair", zap.Error(err))
	}

	log.Debug("pair scored", zap.Int("score", report.Result.Score), zap.String("tier", string(report.Result.Tier)))

	out := cmd.OutOrStdout()
	if output == outputJSON {
		if err := writeJSON(out, report); err != nil {
			log.Fatal("writing output", zap.Error(err))
		}
		return
	}
	renderPair(out, report)
}

// scorePair scores a single pair the way the forward ranking would.
func scorePair(engine *matching.Engine, runID string, profile estate.RequirementProfile, listing estate.Listing, feedback []estate.FeedbackRecord) (*pairReport, error) {
	result, err := engine.ScorePair(listing, profile, feedback)
	if err != nil {
		return nil, err
	}

	return &pairReport{
		RunID:       runID,
		ProfileID:   profile.ID,
		ListingID:   listing.ID,
		Result:      result,
		Explanation: matching.Explain(result, listing, profile),
	}, nil
}
