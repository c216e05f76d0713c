package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steward-ai/steward/internal/skill"
	"github.com/steward-ai/steward/internal/store"
)

var skillsAll bool

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect skill records",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openManager()
		if err != nil {
			return err
		}
		defer db.Close()

		skills, err := skill.NewStore(db).List(!skillsAll)
		if err != nil {
			return err
		}
		printSkills(skills)
		return nil
	},
}

var skillsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search skills by name, description, and tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openManager()
		if err != nil {
			return err
		}
		defer db.Close()

		skills, err := skill.NewStore(db).Search(args[0])
		if err != nil {
			return err
		}
		printSkills(skills)
		return nil
	},
}

func init() {
	skillsListCmd.Flags().BoolVar(&skillsAll, "all", false, "include disabled skills")
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsSearchCmd)
}

func printSkills(skills []store.Skill) {
	if len(skills) == 0 {
		fmt.Fprintln(os.Stderr, "no skills")
		return
	}
	for _, s := range skills {
		state := ""
		if !s.IsEnabled {
			state = "  (disabled)"
		}
		fmt.Printf("%s  v%d  %s — %s%s\n", s.ID, s.Version, s.Name, s.Description, state)
	}
}
