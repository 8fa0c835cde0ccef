package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/autosched/pkg/auth"
	"github.com/harrisonrobin/autosched/pkg/config"
	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/orgmode"
	"github.com/harrisonrobin/autosched/pkg/taskwarrior"
	"github.com/harrisonrobin/autosched/pkg/util"
	"github.com/harrisonrobin/autosched/pkg/workhours"
)

const displayLayout = "Mon 2006-01-02 15:04"

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize read access to Google Calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return err
			}
			return auth.Authorize(cmd.Context(), dir, auth.Scopes, cmd.OutOrStdout(), a.log)
		},
	}
}

func newScheduleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule [task-id]",
		Short: "Place one task in its best free slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.orch.ScheduleTask(cmd.Context(), args[0], a.userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res == nil {
				fmt.Fprintf(out, "Task %s was not scheduled (not eligible or no free slot)\n", args[0])
				return nil
			}
			if len(res.Chunks) == 0 {
				fmt.Fprintf(out, "Scheduled %s: %s - %s (%s, %+d days)\n", res.TaskID,
					res.ScheduledStart.Format(displayLayout), res.ScheduledEnd.Format("15:04"), res.ETA.Status, res.ETA.DaysOffset)
				return nil
			}
			fmt.Fprintf(out, "Scheduled %s in %d chunks (%s, %+d days)\n", res.TaskID, len(res.Chunks), res.ETA.Status, res.ETA.DaysOffset)
			for _, c := range res.Chunks {
				fmt.Fprintf(out, "  %d/%d %s - %s  %s\n", c.ChunkNumber, len(res.Chunks),
					c.Start.Format(displayLayout), c.End.Format("15:04"), c.TaskID)
			}
			return nil
		},
	}
}

func newRescheduleCmd(a *app) *cobra.Command {
	var (
		workspace string
		allUsers  bool
	)
	cmd := &cobra.Command{
		Use:   "reschedule",
		Short: "Clear and rebuild the schedule of every eligible task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !allUsers {
				res, err := a.orch.RescheduleAll(cmd.Context(), a.userID, workspace)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Scheduled %d, failed %d\n", res.Scheduled, res.Failed)
				return nil
			}

			results, err := a.orch.RescheduleUsers(cmd.Context(), a.cfg.Users, workspace, a.cfg.Parallelism)
			for _, u := range a.cfg.Users {
				if res, ok := results[u]; ok {
					fmt.Fprintf(out, "%s: scheduled %d, failed %d\n", u, res.Scheduled, res.Failed)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "limit to one workspace")
	cmd.Flags().BoolVar(&allUsers, "all-users", false, "reschedule every user listed in the config")
	return cmd
}

func newETAsCmd(a *app) *cobra.Command {
	var workspace string
	cmd := &cobra.Command{
		Use:   "etas",
		Short: "Recompute deadline status for every task with a deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.orch.UpdateAllETAs(cmd.Context(), a.userID, workspace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d tasks\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "limit to one workspace")
	return cmd
}

func newConflictsCmd(a *app) *cobra.Command {
	var (
		workspace string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List tasks at risk of missing their deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := a.orch.CheckDeadlineConflicts(cmd.Context(), a.userID, workspace)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if reports == nil {
					reports = []model.ConflictReport{}
				}
				return enc.Encode(reports)
			}
			if len(reports) == 0 {
				fmt.Fprintln(out, "No deadline conflicts.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDEADLINE\tSCHEDULED\tSTATUS")
			for _, r := range reports {
				scheduled := "-"
				if r.ScheduledDate != nil {
					scheduled = r.ScheduledDate.Format(displayLayout)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.TaskID, r.Name, r.Deadline.Format(displayLayout), scheduled, r.Status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "limit to one workspace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newETACmd(a *app) *cobra.Command {
	var due, scheduled string
	cmd := &cobra.Command{
		Use:   "eta",
		Short: "Compute the deadline status for a due date and optional scheduled date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			var duePtr, schedPtr *time.Time
			if due != "" {
				d, err := parseWhen(due, loc)
				if err != nil {
					return fmt.Errorf("--due: %w", err)
				}
				duePtr = &d
			}
			if scheduled != "" {
				s, err := parseWhen(scheduled, loc)
				if err != nil {
					return fmt.Errorf("--scheduled: %w", err)
				}
				schedPtr = &s
			}
			e := a.orch.CalculateETA(schedPtr, duePtr)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%+d days)\n", e.Status, e.DaysOffset)
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "deadline (RFC 3339, 2006-01-02 15:04 or 2006-01-02)")
	cmd.Flags().StringVar(&scheduled, "scheduled", "", "scheduled start, same formats as --due")
	return cmd
}

func newAgendaCmd(a *app) *cobra.Command {
	var workspace string
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Show scheduled tasks in time order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.store.ListTasks(cmd.Context(), model.TaskFilter{UserID: a.userID, WorkspaceID: workspace})
			if err != nil {
				return err
			}
			var scheduled []model.Task
			for _, t := range tasks {
				if t.ScheduledStart != nil && t.Status == model.StatusActive {
					scheduled = append(scheduled, t)
				}
			}
			sort.SliceStable(scheduled, func(i, j int) bool {
				return scheduled[i].ScheduledStart.Before(*scheduled[j].ScheduledStart)
			})
			return printAgenda(cmd.OutOrStdout(), scheduled)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "limit to one workspace")
	return cmd
}

func printAgenda(out io.Writer, tasks []model.Task) error {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "Nothing scheduled.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tNAME\tPRIORITY\tETA")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ScheduledStart.Format(displayLayout), t.ScheduledEnd.Format("15:04"),
			t.Name, t.Priority, t.ETAStatus)
	}
	return w.Flush()
}

func newImportCmd(a *app) *cobra.Command {
	var (
		workspace string
		fromTask  bool
		orgFiles  []string
	)
	cmd := &cobra.Command{
		Use:   "import [filter...]",
		Short: "Import tasks from Taskwarrior (export JSON on stdin, or --from-task) or Org files",
		RunE: func(cmd *cobra.Command, args []string) error {
			im := taskwarrior.NewImporter(a.store, a.log)
			var (
				res taskwarrior.ImportResult
				err error
			)
			switch {
			case len(orgFiles) > 0:
				res, err = importOrg(cmd, a, im, orgFiles, workspace)
			case fromTask:
				var tasks []taskwarrior.Task
				if tasks, err = taskwarrior.NewClient().GetTasks(cmd.Context(), args); err == nil {
					res, err = im.Import(cmd.Context(), tasks, a.userID, workspace)
				}
			default:
				var tasks []taskwarrior.Task
				if tasks, err = taskwarrior.NewClient().ParseTasks(cmd.InOrStdin()); err == nil {
					res, err = im.Import(cmd.Context(), tasks, a.userID, workspace)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d, already present %d, skipped %d\n", res.Created, res.Existing, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace assigned to imported tasks")
	cmd.Flags().BoolVar(&fromTask, "from-task", false, "run 'task export' instead of reading stdin")
	cmd.Flags().StringSliceVar(&orgFiles, "org", nil, "Org files to read TODO headings from")
	return cmd
}

func importOrg(cmd *cobra.Command, a *app, im *taskwarrior.Importer, files []string, workspace string) (taskwarrior.ImportResult, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return taskwarrior.ImportResult{}, err
	}
	entries, err := orgmode.ParseFiles(files, loc)
	if err != nil {
		return taskwarrior.ImportResult{}, err
	}
	tasks := make([]*model.Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, orgmode.ToTask(e, a.userID, workspace))
	}
	return im.Save(cmd.Context(), tasks)
}

func newWorkHoursCmd(a *app) *cobra.Command {
	wh := &cobra.Command{
		Use:   "workhours",
		Short: "Manage your default working hours",
	}

	var (
		start, end string
		days       []string
		disabled   bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Store your default working hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateHours(start, end, days); err != nil {
				return err
			}
			pref := model.WorkHours{Enabled: !disabled, StartTime: start, EndTime: end, Days: days}
			if err := a.store.PutWorkHours(cmd.Context(), a.userID, pref); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Work hours for %s: %s-%s on %s\n", a.userID, start, end, strings.Join(days, ","))
			return nil
		},
	}
	addHourFlags(set, &start, &end, &days)
	set.Flags().BoolVar(&disabled, "disabled", false, "store the preference but do not use it")

	wh.AddCommand(set)
	return wh
}

func newSchedulesCmd(a *app) *cobra.Command {
	sc := &cobra.Command{
		Use:   "schedules",
		Short: "Manage named working-hours schedules",
	}

	var (
		start, end string
		days       []string
	)
	add := &cobra.Command{
		Use:   "add [schedule-id]",
		Short: "Create or replace a named schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateHours(start, end, days); err != nil {
				return err
			}
			cfg := workhours.FromWorkHours(model.WorkHours{Enabled: true, StartTime: start, EndTime: end, Days: days})
			if err := a.store.PutSchedule(cmd.Context(), args[0], a.userID, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s: %s-%s on %s\n", args[0], start, end, strings.Join(days, ","))
			return nil
		},
	}
	addHourFlags(add, &start, &end, &days)

	sc.AddCommand(add)
	return sc
}

func addHourFlags(cmd *cobra.Command, start, end *string, days *[]string) {
	cmd.Flags().StringVar(start, "start", "09:00", "start of the working day (HH:MM)")
	cmd.Flags().StringVar(end, "end", "17:00", "end of the working day (HH:MM)")
	cmd.Flags().StringSliceVar(days, "days", []string{"monday", "tuesday", "wednesday", "thursday", "friday"}, "working days")
}

func validateHours(start, end string, days []string) error {
	s, err := util.ParseClock(start)
	if err != nil {
		return err
	}
	e, err := util.ParseClock(end)
	if err != nil {
		return err
	}
	if e <= s {
		return fmt.Errorf("end %s must be after start %s", end, start)
	}
	if len(days) == 0 {
		return fmt.Errorf("at least one working day is required")
	}
	for _, d := range days {
		if !workhours.IsWeekdayName(d) {
			return fmt.Errorf("unknown weekday %q", d)
		}
	}
	return nil
}

// parseWhen accepts RFC 3339, "2006-01-02 15:04" or a bare date, the last two in loc.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
