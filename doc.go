// Package vpcsubnetassigner attaches compute instances to VPC subnets and
// detaches them again, across both interface generations an instance can
// use: interfaces scoped to a configuration profile and interfaces attached
// directly to the instance.
//
// This package can be used in two ways:
//
// 1. As a command line tool (see cmd/subnetctl)
// 2. As a library (see pkg/lib)
//
// For library usage, import the lib package:
//
//	import "github.com/johnlam90/vpc-subnet-assigner/pkg/lib"
//
// Then use the Manager to assign and unassign instances:
//
//	// Create a logger
//	zapLog, _ := zap.NewDevelopment()
//	logger := zapr.NewLogger(zapLog)
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatalf("Failed to load config: %v", err)
//	}
//
//	manager, err := lib.NewManager(ctx, cfg, logger, lib.Options{})
//	if err != nil {
//	    log.Fatalf("Failed to create manager: %v", err)
//	}
//
//	assignment, err := manager.Assign(ctx, netif.AssignmentRequest{
//	    InstanceID:     "123",
//	    SubnetID:       "456",
//	    AutoAssignIPv4: true,
//	})
//
// Two backends are available: the JSON REST API (pkg/api) and Amazon EC2
// (pkg/aws), which serves per-instance interfaces as ENIs.
package vpcsubnetassigner
