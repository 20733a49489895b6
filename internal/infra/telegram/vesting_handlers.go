package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"vesting_treasury_bot/internal/app"
	"vesting_treasury_bot/internal/domain/custody"
	"vesting_treasury_bot/internal/domain/vesting"
	"vesting_treasury_bot/internal/infra/ledger"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterVestingHandlers registers the ops-bot commands. Creating and
// funding are admin-gated; withdrawals and queries are open to anyone, since
// a release can only ever pay the schedule's beneficiary.
func RegisterVestingHandlers(
	ctx context.Context,
	b *telebot.Bot,
	vestingSvc *app.VestingService,
	reportSvc *app.TreasuryReportService,
	bookLedger *ledger.PostgresLedger,
	adminTelegramID int64,
	baseLogger *logrus.Entry,
) {
	b.Handle("/fund", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/fund",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("Error: you are not allowed to run this command.")
		}

		args := c.Args()
		// Expected format: /fund <asset> <account> <amount>
		if len(args) != 3 {
			return c.Send("Invalid format. Use: /fund <asset> <account> <amount>")
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return c.Send("Error: amount must be a positive integer in base units.")
		}

		if err := bookLedger.Deposit(ctx, vesting.Asset(args[0]), vesting.Address(args[1]), amount); err != nil {
			handlerLogger.WithError(err).Error("Failed to fund account")
			return c.Send(fmt.Sprintf("Funding failed: %s", err.Error()))
		}
		return c.Send(fmt.Sprintf("Credited %s of %s to %s.", amount, args[0], args[1]))
	})

	b.Handle("/balance", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/balance",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		args := c.Args()
		// Expected format: /balance <asset> <account>
		if len(args) != 2 {
			return c.Send("Invalid format. Use: /balance <asset> <account>")
		}
		balance, err := bookLedger.Balance(ctx, vesting.Asset(args[0]), vesting.Address(args[1]))
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to read balance")
			return c.Send("An error occurred while reading the balance.")
		}
		return c.Send(fmt.Sprintf("Balance of %s for %s: %s", args[1], args[0], balance))
	})

	b.Handle("/lock", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/lock",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("Error: you are not allowed to run this command.")
		}

		args := c.Args()
		// Expected format: /lock <asset> <creator> <beneficiary> <total> <cliff_amount> <cliff_seconds> <cycle_seconds> <cycles>
		if len(args) != 8 {
			return c.Send("Invalid format. Use: /lock <asset> <creator> <beneficiary> <total> <cliff_amount> <cliff_seconds> <cycle_seconds> <cycles>")
		}

		total, err := parseAmount(args[3])
		if err != nil {
			return c.Send("Error: total amount must be a positive integer in base units.")
		}
		cliffAmount, ok := new(big.Int).SetString(args[4], 10)
		if !ok || cliffAmount.Sign() < 0 {
			return c.Send("Error: cliff amount must be a non-negative integer in base units.")
		}
		cliffSeconds, err1 := strconv.ParseInt(args[5], 10, 64)
		cycleSeconds, err2 := strconv.ParseInt(args[6], 10, 64)
		cycles, err3 := strconv.ParseInt(args[7], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return c.Send("Error: durations and cycle count must be integers (seconds).")
		}

		params := vesting.CommonParams{TotalCycles: cycles, CycleSeconds: cycleSeconds, CliffSeconds: cliffSeconds}
		alloc := vesting.Allocation{Beneficiary: vesting.Address(args[2]), TotalAmount: total, CliffAmount: cliffAmount}

		schedule, err := vestingSvc.CreateSchedule(ctx, vesting.Asset(args[0]), vesting.Address(args[1]), params, alloc)
		if err != nil {
			return replyCreateError(c, handlerLogger, err)
		}

		handlerLogger.WithFields(logrus.Fields{
			"asset":       schedule.Asset,
			"beneficiary": schedule.Beneficiary,
			"total":       schedule.TotalAmount.String(),
		}).Info("Schedule created")
		return c.Send(fmt.Sprintf("Locked %s of %s for %s. Fully vested at %s.",
			schedule.TotalAmount, schedule.Asset, schedule.Beneficiary,
			time.Unix(schedule.Start+schedule.VestingSeconds, 0).UTC().Format(time.RFC3339)))
	})

	b.Handle("/batchlock", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/batchlock",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("Error: you are not allowed to run this command.")
		}

		args := c.Args()
		// Expected format: /batchlock <asset> <creator> <cliff_seconds> <cycle_seconds> <cycles> <beneficiary:total:cliff_amount> ...
		if len(args) < 6 {
			return c.Send("Invalid format. Use: /batchlock <asset> <creator> <cliff_seconds> <cycle_seconds> <cycles> <beneficiary:total:cliff_amount> ...")
		}
		cliffSeconds, err1 := strconv.ParseInt(args[2], 10, 64)
		cycleSeconds, err2 := strconv.ParseInt(args[3], 10, 64)
		cycles, err3 := strconv.ParseInt(args[4], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return c.Send("Error: durations and cycle count must be integers (seconds).")
		}

		allocs := make([]vesting.Allocation, 0, len(args)-5)
		for _, entry := range args[5:] {
			alloc, err := parseAllocation(entry)
			if err != nil {
				return c.Send(fmt.Sprintf("Error in entry %q: %s", entry, err.Error()))
			}
			allocs = append(allocs, alloc)
		}

		params := vesting.CommonParams{TotalCycles: cycles, CycleSeconds: cycleSeconds, CliffSeconds: cliffSeconds}
		aggregate, err := vestingSvc.CreateBatch(ctx, vesting.Asset(args[0]), vesting.Address(args[1]), params, allocs)
		if err != nil {
			return replyCreateError(c, handlerLogger, err)
		}

		handlerLogger.WithFields(logrus.Fields{
			"schedules": len(allocs),
			"aggregate": aggregate.String(),
		}).Info("Batch created")
		return c.Send(fmt.Sprintf("Locked %s of %s across %d schedules.", aggregate, args[0], len(allocs)))
	})

	b.Handle("/withdraw", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/withdraw",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		args := c.Args()
		// Expected format: /withdraw <asset> <creator> <beneficiary>
		if len(args) != 3 {
			return c.Send("Invalid format. Use: /withdraw <asset> <creator> <beneficiary>")
		}
		key := vesting.Key{Asset: vesting.Asset(args[0]), Creator: vesting.Address(args[1]), Beneficiary: vesting.Address(args[2])}

		result, err := vestingSvc.Withdraw(ctx, key)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, vesting.ErrInvalidWithdrawalRequest):
				logWithError.Warn("Invalid withdrawal request")
				return c.Send("Error: creator and beneficiary must not be empty.")
			case errors.Is(err, vesting.ErrScheduleNotFound):
				logWithError.Warn("Schedule not found for withdrawal")
				return c.Send("No live schedule exists for that key.")
			case errors.Is(err, vesting.ErrNothingToClaim):
				logWithError.Info("Nothing to claim")
				return c.Send("Nothing to claim yet for that schedule.")
			case errors.Is(err, custody.ErrTransferFailed):
				logWithError.Error("Custody transfer failed")
				return c.Send("Custody transfer failed; nothing was released. You may retry the identical request.")
			default:
				logWithError.Error("Failed to execute withdrawal")
				return c.Send(fmt.Sprintf("An error occurred during withdrawal: %s", err.Error()))
			}
		}

		handlerLogger.WithFields(logrus.Fields{
			"released":  result.Amount.String(),
			"completed": result.Completed,
		}).Info("Withdrawal executed")
		if result.Completed {
			return c.Send(fmt.Sprintf("Released final %s of %s to %s. Schedule is complete and has been removed.", result.Amount, key.Asset, key.Beneficiary))
		}
		return c.Send(fmt.Sprintf("Released %s of %s to %s. Claimed %s of %s so far.", result.Amount, key.Asset, key.Beneficiary, result.Claimed, result.Total))
	})

	b.Handle("/schedule", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/schedule",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		args := c.Args()
		// Expected format: /schedule <asset> <creator> <beneficiary>
		if len(args) != 3 {
			return c.Send("Invalid format. Use: /schedule <asset> <creator> <beneficiary>")
		}
		key := vesting.Key{Asset: vesting.Asset(args[0]), Creator: vesting.Address(args[1]), Beneficiary: vesting.Address(args[2])}

		schedule, err := vestingSvc.GetSchedule(ctx, key)
		if err != nil {
			if errors.Is(err, vesting.ErrScheduleNotFound) {
				// Absence is a normal answer for queries.
				return c.Send("No live schedule exists for that key.")
			}
			handlerLogger.WithError(err).Error("Failed to load schedule")
			return c.Send("An error occurred while loading the schedule.")
		}
		claimable, err := vestingSvc.Claimable(ctx, key)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to compute claimable amount")
			return c.Send("An error occurred while computing the claimable amount.")
		}

		return c.Send(fmt.Sprintf(
			"Schedule %s → %s (%s)\nStarted: %s\nCliff: %ds, cycle: %ds, cycles: %d\nTotal: %s\nCliff amount: %s\nClaimed: %s\nClaimable now: %s",
			schedule.Creator, schedule.Beneficiary, schedule.Asset,
			time.Unix(schedule.Start, 0).UTC().Format(time.RFC3339),
			schedule.CliffSeconds, schedule.CycleSeconds, schedule.TotalCycles(),
			schedule.TotalAmount, schedule.CliffAmount, schedule.ClaimedAmount, claimable))
	})

	b.Handle("/treasury", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/treasury",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		report, err := reportSvc.Snapshot(ctx)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to build treasury snapshot")
			return c.Send("An error occurred while building the treasury snapshot.")
		}
		if len(report.Assets) == 0 {
			return c.Send("No live schedules.")
		}

		var sb strings.Builder
		sb.WriteString("Treasury snapshot:\n")
		for _, summary := range report.Assets {
			sb.WriteString(fmt.Sprintf("%s: %d schedule(s), locked %s, claimed %s, pending %s\n",
				summary.Asset, summary.LiveSchedules, summary.TotalLocked, summary.TotalClaimed, summary.TotalPending))
		}
		return c.Send(sb.String())
	})
}

// replyCreateError maps creation failures to user-facing messages.
func replyCreateError(c telebot.Context, handlerLogger *logrus.Entry, err error) error {
	logWithError := handlerLogger.WithError(err)
	switch {
	case errors.Is(err, vesting.ErrInvalidScheduleParameters):
		logWithError.Warn("Invalid schedule parameters")
		return c.Send(fmt.Sprintf("Invalid schedule parameters: %s", err.Error()))
	case errors.Is(err, vesting.ErrInvalidBeneficiaryAllocation):
		logWithError.Warn("Invalid beneficiary allocation")
		return c.Send(fmt.Sprintf("Invalid allocation: %s", err.Error()))
	case errors.Is(err, vesting.ErrScheduleAlreadyExists):
		logWithError.Warn("Schedule already exists")
		return c.Send("A live schedule already exists for that key. It must vest fully before a new one can be created.")
	case errors.Is(err, custody.ErrFeeOnTransferAsset):
		logWithError.Warn("Fee-on-transfer asset rejected")
		return c.Send("That asset deducts a fee on transfer and cannot be used for vesting.")
	case errors.Is(err, custody.ErrTransferFailed):
		logWithError.Error("Custody pull failed")
		return c.Send("Custody transfer failed; no schedule was created. Check the creator's balance.")
	default:
		logWithError.Error("Failed to create schedule(s)")
		return c.Send(fmt.Sprintf("An error occurred while creating the schedule(s): %s", err.Error()))
	}
}

// parseAmount parses a strictly positive base-unit amount.
func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be a positive integer")
	}
	return amount, nil
}

// parseAllocation parses one "beneficiary:total:cliff_amount" batch entry.
func parseAllocation(entry string) (vesting.Allocation, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return vesting.Allocation{}, fmt.Errorf("expected beneficiary:total:cliff_amount")
	}
	total, err := parseAmount(parts[1])
	if err != nil {
		return vesting.Allocation{}, fmt.Errorf("total: %w", err)
	}
	cliffAmount, ok := new(big.Int).SetString(parts[2], 10)
	if !ok || cliffAmount.Sign() < 0 {
		return vesting.Allocation{}, fmt.Errorf("cliff amount must be a non-negative integer")
	}
	return vesting.Allocation{
		Beneficiary: vesting.Address(parts[0]),
		TotalAmount: total,
		CliffAmount: cliffAmount,
	}, nil
}
