package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spectrum-club/internal/models"
	"spectrum-club/internal/models/config"
	"spectrum-club/internal/service"
)

type windowFlags struct {
	from string
	to   string
}

func (f *windowFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "первая дата окна, YYYY-MM-DD (по умолчанию сегодня)")
	cmd.Flags().StringVar(&f.to, "to", "", "последняя дата окна, YYYY-MM-DD (по умолчанию сегодня + REBUILD_HORIZON_DAYS)")
}

func (f *windowFlags) resolve(cfg *config.Config) (time.Time, time.Time, error) {
	loc := cfg.Location()
	from := time.Now().In(loc)
	to := from.AddDate(0, 0, cfg.RebuildHorizonDays)

	var err error
	if f.from != "" {
		if from, err = time.ParseInLocation(time.DateOnly, f.from, loc); err != nil {
			return from, to, fmt.Errorf("--from: %w", err)
		}
	}
	if f.to != "" {
		if to, err = time.ParseInLocation(time.DateOnly, f.to, loc); err != nil {
			return from, to, fmt.Errorf("--to: %w", err)
		}
	}
	return from, to, nil
}

func materializeCommand() *cobra.Command {
	var (
		window     windowFlags
		programIDs []int64
	)
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Построить занятия по активным шаблонам",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var schedule service.ScheduleService
			return runOnce(cmd, func(ctx context.Context, cfg *config.Config, _ *zap.Logger) error {
				from, to, err := window.resolve(cfg)
				if err != nil {
					return err
				}
				res, err := schedule.Materialize(ctx, programIDs, from, to)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ добавлено: %d, обновлено: %d, без тренера: %d, некорректных: %d\n",
					res.Inserted, res.Updated, res.SkippedMissingCoach, res.SkippedInvalid)
				return nil
			}, &schedule)
		},
	}
	window.bind(cmd)
	cmd.Flags().Int64SliceVar(&programIDs, "program", nil, "программы (по умолчанию все активные)")
	return cmd
}

func rebuildCommand() *cobra.Command {
	var (
		window    windowFlags
		programID int64
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Отменить будущие занятия программы и построить их заново",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var schedule service.ScheduleService
			return runOnce(cmd, func(ctx context.Context, cfg *config.Config, _ *zap.Logger) error {
				from, to, err := window.resolve(cfg)
				if err != nil {
					return err
				}
				res, err := schedule.RebuildWindow(ctx, programID, from, to)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ отменено: %d, добавлено: %d, обновлено: %d\n",
					res.Cancelled, res.Materialize.Inserted, res.Materialize.Updated)
				return nil
			}, &schedule)
		},
	}
	window.bind(cmd)
	cmd.Flags().Int64Var(&programID, "program", 0, "программа")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func cancelFutureCommand() *cobra.Command {
	var (
		programID int64
		from      string
	)
	cmd := &cobra.Command{
		Use:   "cancel-future",
		Short: "Отменить будущие занятия программы без отметок посещения",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var schedule service.ScheduleService
			return runOnce(cmd, func(ctx context.Context, cfg *config.Config, _ *zap.Logger) error {
				start := time.Now()
				if from != "" {
					var err error
					if start, err = time.ParseInLocation(time.DateOnly, from, cfg.Location()); err != nil {
						return fmt.Errorf("--from: %w", err)
					}
				}
				n, err := schedule.CancelFuture(ctx, programID, start)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ отменено: %d\n", n)
				return nil
			}, &schedule)
		},
	}
	cmd.Flags().Int64Var(&programID, "program", 0, "программа")
	cmd.Flags().StringVar(&from, "from", "", "дата, YYYY-MM-DD (по умолчанию текущий момент)")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func editSlotCommand() *cobra.Command {
	var (
		slotID    int64
		coachID   int64
		dayOfWeek int
		start     string
		end       string
		active    bool
	)
	cmd := &cobra.Command{
		Use:   "edit-slot",
		Short: "Изменить шаблон и перестроить расписание программы",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch models.SlotPatch
			flags := cmd.Flags()
			if flags.Changed("coach") {
				patch.CoachID = &coachID
			}
			if flags.Changed("day") {
				patch.DayOfWeek = &dayOfWeek
			}
			if flags.Changed("active") {
				patch.IsActive = &active
			}
			for name, raw := range map[string]string{"start": start, "end": end} {
				if !flags.Changed(name) {
					continue
				}
				t, err := models.ParseTimeOfDay(raw)
				if err != nil {
					return fmt.Errorf("--%s: %w", name, err)
				}
				if name == "start" {
					patch.StartTime = &t
				} else {
					patch.EndTime = &t
				}
			}

			var schedule service.ScheduleService
			return runOnce(cmd, func(ctx context.Context, _ *config.Config, _ *zap.Logger) error {
				res, err := schedule.EditSlot(ctx, slotID, patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ шаблон %d изменен: отменено %d, добавлено %d, обновлено %d\n",
					slotID, res.Cancelled, res.Materialize.Inserted, res.Materialize.Updated)
				return nil
			}, &schedule)
		},
	}
	cmd.Flags().Int64Var(&slotID, "slot", 0, "шаблон")
	cmd.Flags().Int64Var(&coachID, "coach", 0, "новый тренер")
	cmd.Flags().IntVar(&dayOfWeek, "day", 0, "день недели, 1=пн..7=вс")
	cmd.Flags().StringVar(&start, "start", "", "начало, HH:MM")
	cmd.Flags().StringVar(&end, "end", "", "окончание, HH:MM")
	cmd.Flags().BoolVar(&active, "active", true, "шаблон активен")
	_ = cmd.MarkFlagRequired("slot")
	return cmd
}
