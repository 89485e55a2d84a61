/*
Package lib provides a clean API for using the subnet assignment workflows
as a library in other Go projects.

Basic usage:

	// Create a logger
	zapLog, _ := zap.NewDevelopment()
	logger := zapr.NewLogger(zapLog)

	// Load configuration from the environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	manager, err := lib.NewManager(ctx, cfg, logger, lib.Options{})
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	// Attach an instance, letting the API pick the address
	assignment, err := manager.Assign(ctx, netif.AssignmentRequest{
		InstanceID:     "123",
		SubnetID:       "456",
		AutoAssignIPv4: true,
	})
	if err != nil {
		if apiErr, ok := api.AsErrors(err); ok {
			for _, fieldErr := range apiErr.FieldErrors() {
				log.Printf("%s: %s", fieldErr.Field, fieldErr.Reason)
			}
		}
		log.Fatalf("Failed to assign: %v", err)
	}

	// Detach a batch of instances; some may fail while others succeed
	selection := unassign.NewSelection("123", "124")
	result := manager.Unassign(ctx, selection, "vpc-1", "456")
	if err := result.Err(); err != nil {
		log.Printf("Some instances are still attached: %v", err)
	}

For more examples, see the examples/library-usage directory.
*/
package lib
