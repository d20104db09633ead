package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-allocation/internal/adapter/handler"
	"github.com/rl1809/stock-allocation/pkg/logger"
)

func main() {
	target := flag.String("target", "localhost:50051", "gRPC address of the inventory server")
	initialStock := flag.Int("stock", 20, "units created for the test item")
	totalRequests := flag.Int("requests", 50, "concurrent Allocate(1) calls")
	flag.Parse()

	logger.Init("stress-test", true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := handler.NewGRPCClient(*target)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create client")
	}
	defer client.Close()

	if err := client.Ready(ctx); err != nil {
		logger.Logger.Fatal().Err(err).Str("target", *target).Msg("server not ready")
	}

	// Fresh item per run so repeated runs do not interfere
	itemID := "stress-" + uuid.NewString()
	if _, err := client.CreateInventory(ctx, &handler.CreateInventoryRequest{
		ItemID:   itemID,
		Quantity: *initialStock,
	}); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create inventory")
	}

	// Counters
	var successCount atomic.Int32
	var rejectedCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := client.Allocate(ctx, uuid.NewString(), itemID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case status.Code(err) == codes.FailedPrecondition:
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
				logger.Logger.Error().Err(err).Msg("allocate failed")
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Item:             %s\n", itemID)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Allocated:        %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := min(*initialStock, *totalRequests)
	passed := true

	// Assertions
	if int(success) == expected && int(rejected) == *totalRequests-expected {
		fmt.Printf("PASS: Exactly %d allocations succeeded, %d rejected\n", success, rejected)
	} else {
		fmt.Printf("FAIL: Expected %d allocated/%d rejected, got %d/%d\n",
			expected, *totalRequests-expected, success, rejected)
		passed = false
	}

	// Verify final state
	snap, err := client.GetInventory(ctx, itemID)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to read inventory")
	}
	fmt.Printf("Final Available:  %d\n", snap.AvailableQuantity)

	if snap.AvailableQuantity == *initialStock-expected && snap.ReservedQuantity == expected {
		fmt.Println("PASS: Reserved quantity matches successful allocations")
	} else {
		fmt.Printf("FAIL: Expected reserved %d, got %d\n", expected, snap.ReservedQuantity)
		passed = false
	}

	if !passed {
		os.Exit(1)
	}
}
