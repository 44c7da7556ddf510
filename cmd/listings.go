package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/property-matcher/internal/ai"
	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/filtering"
	"github.com/spigell/property-matcher/internal/logger"
	"github.com/spigell/property-matcher/internal/matching"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptDone             = "Done"
	PromptBack             = "back"
	PromptReportByCity     = "Report by city"
	PromptListingsToFile   = "Dump listings to file"
	PromptManualDismiss    = "Dismiss listings in manual mode"
	PromptDismissAll       = "Append all listings to dismissed file"
	defaultDismissedReason = "dismissed from the listings menu"
)

var listingsPrompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptDone, PromptReportByCity, PromptListingsToFile, PromptManualDismiss},
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Rank listings for one requirement profile",
	Run: func(cmd *cobra.Command, _ []string) {
		rankListings(cmd)
	},
}

func init() {
	rootCmd.AddCommand(listingsCmd)

	listingsCmd.Flags().StringP("profile", "p", "", "requirement profile id (asked interactively when empty)")
	listingsCmd.Flags().IntP("top", "n", 0, "number of results to return (default is matching.top-n)")
	listingsCmd.Flags().Bool("include-reviewed", false, "do not drop listings the profile already left feedback on")
	listingsCmd.Flags().Bool("ai", false, "augment the results with a narrative insight")
	listingsCmd.Flags().StringP("output", "o", outputText, "output format: text or json")
	listingsCmd.Flags().Bool("strict-listing-type", false, "drop listings of the wrong type before scoring")
	listingsCmd.Flags().BoolP("interactive", "i", false, "offer reports and dismissals after ranking")
	listingsCmd.Flags().StringP("dismissed-file", "e", "", "file with dismissed listings to exclude. Default is unset.")

	viper.BindPFlag("dismissed-file", listingsCmd.Flags().Lookup("dismissed-file"))
	viper.BindPFlag("strict-listing-type", listingsCmd.Flags().Lookup("strict-listing-type"))
}

// rankListings is the forward ranking command.
func rankListings(cmd *cobra.Command) {
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

	profile, err := s.snapshot.FindProfile(profileID)
	if err != nil {
		s.logger.Fatal("finding the profile", zap.Error(err))
	}

	log := logger.WithFields(s.logger, logger.RunFields("", string(matching.Forward), profile.ID, "")...)

	steps := []filtering.Filter{
		filtering.NewDismissedFile(),
		filtering.NewReviewed(cmd),
		filtering.NewListingType(s.config.StrictListingType),
	}
	deps := filtering.Deps{
		Logger:   log,
		Profile:  &profile,
		Feedback: s.snapshot.Feedback,
	}

	candidates, err := filtering.Run(s.ctx, &filtering.Config{DismissedFile: s.config.DismissedFile}, deps, steps, s.snapshot.ListingSet())
	if err != nil {
		log.Fatal("filtering failed", zap.Error(err))
	}

	top, _ := cmd.Flags().GetInt("top")
	ranking, err := s.engine.RankListingsForProfile(s.ctx, profile, candidates.Values(), s.snapshot.Feedback, top)
	if err != nil {
		log.Fatal("ranking listings", zap.Error(err))
	}

	report := newForwardReport(s.runID, profile, ranking, candidates)
	report.Filters = filtering.Describe(steps)

	log.Info("listings ranked",
		zap.Int("candidates", ranking.Candidates),
		zap.Int("results", len(report.Results)),
		zap.Int("rejected", len(report.Rejected)),
	)

	withAI, _ := cmd.Flags().GetBool("ai")
	if withAI || (s.config.AI != nil && s.config.AI.Enabled) {
		augmentation := augment(s, log, profile, report)
		report.Augmentation = &augmentation
	}

	out := cmd.OutOrStdout()
	if output == outputJSON {
		if err := writeJSON(out, report); err != nil {
			log.Fatal("writing output", zap.Error(err))
		}
	} else {
		renderForward(out, report)
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); !interactive || len(report.Results) == 0 {
		return
	}

	listings := report.listingSet()
	for {
		_, action, err := listingsPrompt.Run()
		if err != nil {
			log.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, log, s.config, listings); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			log.Fatal("exiting", zap.Error(err))
		}

		log.Info("current list of listings", zap.Int("count", listings.Len()))
	}
}

func augment(s *session, log *zap.Logger, profile estate.RequirementProfile, report *forwardReport) ai.Augmentation {
	timeout := ai.DefaultTimeout
	if s.config.AI != nil && s.config.AI.Timeout > 0 {
		timeout = s.config.AI.Timeout
	}

	var augmentation ai.Augmentation
	augmenter, err := newAugmenter(s.ctx, s.config.AI, log)
	if err != nil {
		log.Warn("skipping augmentation", zap.Error(err))
		augmentation = ai.Augmentation{Available: false, Reason: err.Error()}
	} else {
		history := feedbackHistory(profile.ID, s.snapshot.Feedback, s.snapshot.Listings)
		augmentation = ai.SafeAugment(s.ctx, augmenter, timeout, report.augmentRequest(profile, history), log)
	}

	s.recorder.ObserveAugmentation(augmentation.Available)
	return augmentation
}

func handleAction(action string, log *zap.Logger, config *Config, listings *estate.Listings) error {
	switch action {
	case PromptDone:
		log.Info("exiting", zap.String("reason", "done from prompt"))
		return errExit
	case PromptReportByCity:
		pretty, _ := json.MarshalIndent(listings.ReportByCity(), "", "  ")
		log.Info(string(pretty), zap.Int("listings count", listings.Len()))
		return nil
	case PromptListingsToFile:
		filename, err := listings.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		log.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptManualDismiss:
		return manualDismiss(log, config.DismissedFile, listings)
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func manualDismiss(log *zap.Logger, dismissedFile string, listings *estate.Listings) error {
	if dismissedFile == "" {
		log.Warn("dismissing is not possible", zap.String("hint", "set dismissed-file in the config or pass --dismissed-file"))
		return nil
	}

	for {
		items := make([]string, 0, listings.Len()+2)
		for _, l := range listings.Items {
			items = append(items, fmt.Sprintf("%s %s / %s / %.0f", l.ID, orDash(l.Title), orDash(l.Location()), l.Price))
		}
		if listings.Len() != 0 {
			items = append(items, PromptDismissAll)
		}

		listingPrompt := promptui.Select{
			Label: "Choose a listing to dismiss and press ENTER",
			Items: append(items, PromptBack),
		}

		_, selected, err := listingPrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptBack:
			return nil
		case PromptDismissAll:
			if err := dismiss(dismissedFile, listings); err != nil {
				return err
			}
			log.Info("appended to dismissed file", zap.String("filename", dismissedFile), zap.Int("count", listings.Len()))
			listings.Items = nil
		default:
			id := strings.Split(selected, " ")[0]
			l := listings.FindByID(id)
			if l == nil {
				return fmt.Errorf("there is no such listing id %s", id)
			}

			if err := dismiss(dismissedFile, &estate.Listings{Items: []*estate.Listing{l}}); err != nil {
				return err
			}
			log.Info("listing dismissed", zap.String(logger.FieldListingID, id), zap.String("filename", dismissedFile))

			listings.Exclude(estate.ListingIDField, []string{id})
		}
	}
}

func dismiss(path string, listings *estate.Listings) error {
	dismissed, err := estate.GetDismissedListingsFromFile(path)
	if err != nil {
		return err
	}

	dismissed.Append(listings.ToDismissed(estate.DismissActorUser, defaultDismissedReason))

	return dismissed.ToFile(path)
}
