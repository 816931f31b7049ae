// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

// Node type constants shared by the JavaScript, TypeScript and TSX grammars.
const (
	nodeProgram = "program"
	nodeComment = "comment"

	// Imports
	nodeImportStatement = "import_statement"
	nodeImportClause    = "import_clause"
	nodeNamespaceImport = "namespace_import"
	nodeNamedImports    = "named_imports"
	nodeImportSpecifier = "import_specifier"
	nodeString          = "string"
	nodeStringFragment  = "string_fragment"

	// Exports
	nodeExportStatement = "export_statement"
	nodeExportClause    = "export_clause"
	nodeExportSpecifier = "export_specifier"
	nodeNamespaceExport = "namespace_export"
	nodeDefault         = "default"
	nodeStar            = "*"

	// Declarations
	nodeFunctionDeclaration   = "function_declaration"
	nodeGeneratorFunctionDecl = "generator_function_declaration"
	nodeFunctionSignature     = "function_signature"
	nodeClassDeclaration      = "class_declaration"
	nodeAbstractClassDecl     = "abstract_class_declaration"
	nodeLexicalDeclaration    = "lexical_declaration"
	nodeVariableDeclaration   = "variable_declaration"
	nodeVariableDeclarator    = "variable_declarator"
	nodeInterfaceDeclaration  = "interface_declaration"
	nodeTypeAliasDeclaration  = "type_alias_declaration"

	// Functions and classes
	nodeFunction           = "function"
	nodeFunctionExpression = "function_expression"
	nodeGeneratorFunction  = "generator_function"
	nodeArrowFunction      = "arrow_function"
	nodeMethodDefinition   = "method_definition"
	nodeClass              = "class"
	nodeFormalParameters   = "formal_parameters"
	nodeRequiredParameter  = "required_parameter"
	nodeOptionalParameter  = "optional_parameter"
	nodeStatementBlock     = "statement_block"

	// Scoping statements
	nodeForStatement   = "for_statement"
	nodeForInStatement = "for_in_statement"
	nodeCatchClause    = "catch_clause"

	// Patterns
	nodeIdentifier              = "identifier"
	nodeObjectPattern           = "object_pattern"
	nodeArrayPattern            = "array_pattern"
	nodeAssignmentPattern       = "assignment_pattern"
	nodeRestPattern             = "rest_pattern"
	nodeShorthandPropertyPatter = "shorthand_property_identifier_pattern"
	nodePairPattern             = "pair_pattern"
	nodeObjectAssignmentPattern = "object_assignment_pattern"
	nodePropertyIdentifier      = "property_identifier"

	// Expressions
	nodeMemberExpression        = "member_expression"
	nodeParenthesizedExpression = "parenthesized_expression"
	nodeAsExpression            = "as_expression"
	nodeSatisfiesExpression     = "satisfies_expression"
	nodeNonNullExpression       = "non_null_expression"
	nodeTypeAssertion           = "type_assertion"

	// Types
	nodeTypeAnnotation    = "type_annotation"
	nodeObjectType        = "object_type"
	nodeInterfaceBody     = "interface_body"
	nodeIntersectionType  = "intersection_type"
	nodePropertySignature = "property_signature"
	nodeMethodSignature   = "method_signature"

	// JSX
	nodeJSXOpeningElement     = "jsx_opening_element"
	nodeJSXSelfClosingElement = "jsx_self_closing_element"
	nodeJSXAttribute          = "jsx_attribute"
	nodeJSXExpression         = "jsx_expression"
	nodeJSXNamespaceName      = "jsx_namespace_name"
	nodeNestedIdentifier      = "nested_identifier"
	nodeSpreadElement         = "spread_element"
)

// Source file AST structure reference (TSX grammar)
//
// program
// ├── import_statement
// │   ├── import_clause
// │   │   ├── identifier                 // default import
// │   │   ├── namespace_import           // * as ns
// │   │   └── named_imports
// │   │       └── import_specifier+      // name: identifier, alias: identifier?
// │   └── string                         // source
// │
// ├── export_statement
// │   ├── default?
// │   ├── declaration | value            // export [default] <decl|expr>
// │   ├── export_clause                  // { a, b as c }
// │   │   └── export_specifier+          // name, alias?
// │   ├── namespace_export?              // * as ns
// │   └── string?                        // source for re-exports
// │
// ├── lexical_declaration
// │   └── variable_declarator            // name, type?, value?
// │       ├── identifier | object_pattern | array_pattern
// │       ├── type_annotation?
// │       └── arrow_function | identifier | member_expression | ...
// │
// └── function_declaration
//     ├── identifier                     // name
//     ├── formal_parameters
//     │   └── required_parameter         // pattern, type?
//     └── statement_block
//         └── return_statement
//             └── jsx_element
//                 ├── jsx_opening_element      // name, attribute*
//                 │   ├── jsx_attribute        // property_identifier = value
//                 │   └── jsx_expression       // { ...spread_element }
//                 └── jsx_self_closing_element
